package core

import "github.com/smarty/antikinst/contracts"

type CompoundIntegrityCheck struct {
	inners []contracts.IntegrityCheck
}

func NewCompoundIntegrityCheck(inners ...contracts.IntegrityCheck) *CompoundIntegrityCheck {
	return &CompoundIntegrityCheck{inners: inners}
}

// Verify stops at the first failing check.
func (this *CompoundIntegrityCheck) Verify(manifest contracts.Manifest, localPath string) error {
	for _, inner := range this.inners {
		if inner == nil {
			continue
		}
		if err := inner.Verify(manifest, localPath); err != nil {
			return err
		}
	}
	return nil
}
