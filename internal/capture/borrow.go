package capture

import "gocv.io/x/gocv"

// borrowed shares another view's camera. Open and Close do nothing, so a
// secondary view can be torn down without stopping the owner's stream.
type borrowed struct {
	owner Camera
}

// Borrow returns a handle to c that cannot open or close the device.
func Borrow(c Camera) Camera {
	if b, ok := c.(*borrowed); ok {
		return b
	}
	return &borrowed{owner: c}
}

func (b *borrowed) Open() error                   { return nil }
func (b *borrowed) Close() error                  { return nil }
func (b *borrowed) ReadFrame() (*gocv.Mat, error) { return b.owner.ReadFrame() }
func (b *borrowed) SetFPS(int)                    {}
func (b *borrowed) FPS() int                      { return b.owner.FPS() }
func (b *borrowed) IsOpen() bool                  { return b.owner.IsOpen() }
