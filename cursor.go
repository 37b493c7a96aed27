package dealmatcher

// level is one of the three nested pagination levels of the offers query.
type level int

const (
	levelOffers level = iota
	levelPeers
	levelComputeUnits

	levelCount
)

// cursor holds an (offset, reached) pair per level. Moving a level resets
// every level nested below it.
type cursor struct {
	offsets [levelCount]int
	reached [levelCount]bool
}

// advance evaluates a consumed page of level l: a page shorter than
// pageLimit marks the level reached, a full page moves the offset forward.
func (c cursor) advance(l level, pageLen, pageLimit int) cursor {
	if pageLen < pageLimit {
		c.reached[l] = true
		return c
	}
	return c.skip(l, pageLimit)
}

// skip moves level l forward by pageLimit unconditionally.
func (c cursor) skip(l level, pageLimit int) cursor {
	c.offsets[l] += pageLimit
	c.reached[l] = false
	for below := l + 1; below < levelCount; below++ {
		c.offsets[below] = 0
		c.reached[below] = false
	}
	return c
}

func (c cursor) offset(l level) int {
	return c.offsets[l]
}

func (c cursor) isReached(l level) bool {
	return c.reached[l]
}

// exhausted reports whether all three levels reached their last page.
func (c cursor) exhausted() bool {
	for l := levelOffers; l < levelCount; l++ {
		if !c.reached[l] {
			return false
		}
	}
	return true
}
