package racing

// Rank derives the finish order from the lanes' recorded splits and
// distances: 1-based lane indexes, best first. A smaller split is strictly
// better; equal splits are broken by larger distance; exact ties are broken
// in favor of the lower lane index because lanes are inserted in ascending
// index order and a later lane never displaces an exact tie.
func Rank(lanes []Lane) [LanesPerRace]uint8 {
	var order [LanesPerRace]uint8
	n := 0
	for i := range lanes {
		pos := n
		for j := 0; j < n; j++ {
			occ := &lanes[order[j]-1]
			if occ.Split > lanes[i].Split ||
				(occ.Split == lanes[i].Split && occ.Distance < lanes[i].Distance) {
				pos = j
				break
			}
		}
		copy(order[pos+1:n+1], order[pos:n])
		order[pos] = uint8(i + 1)
		n++
	}
	return order
}
