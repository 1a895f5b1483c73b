//go:build !linux

package fstype

func getFSMagic(rootpath string) (FsMagic, error) {
	return FsMagicUnsupported, nil
}
