package shell

import (
	"testing"

	"github.com/smarty/assertions/should"
	"github.com/smarty/gunit"
)

func TestImageSnifferFixture(t *testing.T) {
	gunit.Run(new(ImageSnifferFixture), t)
}

type ImageSnifferFixture struct {
	*gunit.Fixture
	sniffer *ImageSniffer
}

func (this *ImageSnifferFixture) Setup() {
	this.sniffer = NewImageSniffer()
}

func (this *ImageSnifferFixture) TestImages() {
	this.So(this.sniffer.IsImage([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")), should.BeTrue)
	this.So(this.sniffer.IsImage([]byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00}), should.BeTrue)
	this.So(this.sniffer.IsImage([]byte("GIF89a")), should.BeTrue)
}

func (this *ImageSnifferFixture) TestNotImages() {
	this.So(this.sniffer.IsImage(nil), should.BeFalse)
	this.So(this.sniffer.IsImage([]byte("just some text")), should.BeFalse)
	this.So(this.sniffer.IsImage([]byte("MZ\x90\x00")), should.BeFalse)
}
