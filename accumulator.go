package dealmatcher

// accumulator collects matched compute units grouped by offer in first-seen
// order. Units of an offer arriving on a later page merge into its slot.
type accumulator struct {
	slots     map[string]int
	offers    []string
	units     [][]string
	usedPeers map[string]struct{}
	matched   int
}

func newAccumulator() *accumulator {
	return &accumulator{
		slots:     make(map[string]int),
		usedPeers: make(map[string]struct{}),
	}
}

// slot returns the result position of an offer, appending it on first sight.
func (a *accumulator) slot(offerID string) int {
	if i, ok := a.slots[offerID]; ok {
		return i
	}
	i := len(a.offers)
	a.slots[offerID] = i
	a.offers = append(a.offers, offerID)
	a.units = append(a.units, nil)
	return i
}

// add records unitID under the offer slot unless its peer already gave a
// unit during this attempt.
func (a *accumulator) add(slot int, peerID, unitID string) bool {
	if _, used := a.usedPeers[peerID]; used {
		return false
	}
	a.usedPeers[peerID] = struct{}{}
	a.units[slot] = append(a.units[slot], unitID)
	a.matched++
	return true
}

// result builds the MatchResult. Offers that never received a unit are left
// out so both sequences stay index-aligned.
func (a *accumulator) result(fulfilled bool) *MatchResult {
	res := &MatchResult{
		Offers:                make([]string, 0, len(a.offers)),
		ComputeUnitsPerOffers: make([][]string, 0, len(a.offers)),
		Fulfilled:             fulfilled,
	}
	for i, offerID := range a.offers {
		if len(a.units[i]) == 0 {
			continue
		}
		res.Offers = append(res.Offers, offerID)
		res.ComputeUnitsPerOffers = append(res.ComputeUnitsPerOffers, append([]string(nil), a.units[i]...))
	}
	return res
}
