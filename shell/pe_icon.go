package shell

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
)

// PEIconExtractor reads the first icon group from a Windows executable's
// resource section and reassembles it as .ico bytes.
type PEIconExtractor struct{}

func NewPEIconExtractor() *PEIconExtractor {
	return &PEIconExtractor{}
}

func (this *PEIconExtractor) ExtractIcon(executable string) ([]byte, error) {
	file, err := pe.Open(executable)
	if err != nil {
		return nil, fmt.Errorf("read executable: %w", err)
	}
	defer closeResource(file)

	section := file.Section(".rsrc")
	if section == nil {
		return nil, errNoIconResource
	}
	data, err := section.Data()
	if err != nil {
		return nil, fmt.Errorf("read resources: %w", err)
	}
	return iconFromResources(data, section.VirtualAddress)
}

func iconFromResources(data []byte, base uint32) ([]byte, error) {
	resources := resourceSection{data: data, base: base}
	groups, err := resources.ofType(resourceGroupIcon)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, errNoIconResource
	}
	group, err := resources.leaf(groups[0])
	if err != nil {
		return nil, err
	}
	images, err := resources.ofType(resourceIcon)
	if err != nil {
		return nil, err
	}
	return assembleIcon(group, func(id uint32) ([]byte, error) {
		for _, image := range images {
			if !image.named && image.id == id {
				return resources.leaf(image)
			}
		}
		return nil, fmt.Errorf("%w: icon image %d", errMalformedResources, id)
	})
}

// assembleIcon converts a GRPICONDIR into an ICONDIR followed by each image.
func assembleIcon(group []byte, image func(id uint32) ([]byte, error)) ([]byte, error) {
	if len(group) < 6 {
		return nil, errMalformedResources
	}
	count := int(binary.LittleEndian.Uint16(group[4:]))
	if count == 0 || len(group) < 6+count*14 {
		return nil, errMalformedResources
	}

	images := make([][]byte, 0, count)
	for x := 0; x < count; x++ {
		entry := group[6+x*14:]
		content, err := image(uint32(binary.LittleEndian.Uint16(entry[12:])))
		if err != nil {
			return nil, err
		}
		images = append(images, content)
	}

	icon := binary.LittleEndian.AppendUint16(nil, 0)
	icon = binary.LittleEndian.AppendUint16(icon, 1)
	icon = binary.LittleEndian.AppendUint16(icon, uint16(count))
	offset := uint32(6 + count*16)
	for x, content := range images {
		entry := group[6+x*14:]
		icon = append(icon, entry[:8]...)
		icon = binary.LittleEndian.AppendUint32(icon, uint32(len(content)))
		icon = binary.LittleEndian.AppendUint32(icon, offset)
		offset += uint32(len(content))
	}
	for _, content := range images {
		icon = append(icon, content...)
	}
	return icon, nil
}

////////////////////////////////////////

const (
	resourceIcon      = 3
	resourceGroupIcon = 14
	highBit           = 0x80000000
)

type resourceSection struct {
	data []byte
	base uint32
}

type resourceEntry struct {
	id        uint32
	named     bool
	offset    uint32
	directory bool
}

func (this resourceSection) ofType(kind uint32) ([]resourceEntry, error) {
	types, err := this.entries(0)
	if err != nil {
		return nil, err
	}
	for _, entry := range types {
		if !entry.named && entry.id == kind && entry.directory {
			return this.entries(entry.offset)
		}
	}
	return nil, errNoIconResource
}

func (this resourceSection) entries(offset uint32) (entries []resourceEntry, err error) {
	if uint64(offset)+16 > uint64(len(this.data)) {
		return nil, errMalformedResources
	}
	count := uint32(binary.LittleEndian.Uint16(this.data[offset+12:])) + uint32(binary.LittleEndian.Uint16(this.data[offset+14:]))
	start := offset + 16
	if uint64(start)+uint64(count)*8 > uint64(len(this.data)) {
		return nil, errMalformedResources
	}
	for x := uint32(0); x < count; x++ {
		name := binary.LittleEndian.Uint32(this.data[start+x*8:])
		target := binary.LittleEndian.Uint32(this.data[start+x*8+4:])
		entries = append(entries, resourceEntry{
			id:        name &^ highBit,
			named:     name&highBit != 0,
			offset:    target &^ highBit,
			directory: target&highBit != 0,
		})
	}
	return entries, nil
}

// leaf follows the first child at each level (name, then language) down to
// the resource bytes.
func (this resourceSection) leaf(entry resourceEntry) ([]byte, error) {
	for depth := 0; entry.directory; depth++ {
		if depth > 4 {
			return nil, errMalformedResources
		}
		children, err := this.entries(entry.offset)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, errNoIconResource
		}
		entry = children[0]
	}
	if uint64(entry.offset)+8 > uint64(len(this.data)) {
		return nil, errMalformedResources
	}
	address := binary.LittleEndian.Uint32(this.data[entry.offset:])
	size := binary.LittleEndian.Uint32(this.data[entry.offset+4:])
	if address < this.base || uint64(address-this.base)+uint64(size) > uint64(len(this.data)) {
		return nil, errMalformedResources
	}
	start := address - this.base
	return this.data[start : start+size], nil
}

var (
	errNoIconResource     = errors.New("executable has no icon resource")
	errMalformedResources = errors.New("malformed resource section")
)
