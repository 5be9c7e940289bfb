package image

// Image is the finalized process image. The buffer is owned by the transport;
// after Finalize neither its base nor any offset changes.
type Image struct {
	data   []byte
	layout *Layout
}

// Bytes exposes the raw buffer.
func (img *Image) Bytes() []byte {
	return img.data
}

func (img *Image) Size() int {
	return len(img.data)
}

func (img *Image) Layout() *Layout {
	return img.layout
}
