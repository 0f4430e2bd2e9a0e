package memory

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index sets returned by Live and SweepCollect come from a shared pool.
// Owners that sweep every frame hand them back with ReleaseBitmap.
var bitmapPool = sync.Pool{
	New: func() any {
		return roaring.New()
	},
}

func getBitmap() *roaring.Bitmap {
	return bitmapPool.Get().(*roaring.Bitmap)
}

// ReleaseBitmap clears bm and returns it for reuse. bm must not be used
// afterwards.
func ReleaseBitmap(bm *roaring.Bitmap) {
	if bm != nil {
		bm.Clear()
		bitmapPool.Put(bm)
	}
}
