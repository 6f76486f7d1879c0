package shell

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type ImageSniffer struct{}

func NewImageSniffer() *ImageSniffer {
	return &ImageSniffer{}
}

func (this *ImageSniffer) IsImage(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	for detected := mimetype.Detect(content); detected != nil; detected = detected.Parent() {
		if strings.HasPrefix(detected.String(), "image/") {
			return true
		}
	}
	return false
}
