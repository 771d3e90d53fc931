package spv

//go:generate mockgen -source=source.go -destination=source_mock.go -package=spv

// HeaderHashSource is the chain index the verifier trusts. HeaderHash returns
// the display-order hash recorded for height, or ok=false when nothing is
// recorded there.
type HeaderHashSource interface {
	HeaderHash(height uint64) (hash [32]byte, ok bool, err error)
}

// HeaderHashFunc adapts a plain function to HeaderHashSource.
type HeaderHashFunc func(height uint64) ([32]byte, bool, error)

func (f HeaderHashFunc) HeaderHash(height uint64) ([32]byte, bool, error) {
	return f(height)
}
