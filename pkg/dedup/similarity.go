package dedup

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0,1]:
// twice the number of matched runes divided by the total rune count.
// Matching blocks are found recursively around the longest common substring,
// preferring the earliest block on ties.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	m := newMatcher(ra, rb)
	return 2 * float64(m.matches(0, len(ra), 0, len(rb))) / float64(total)
}

type matcher struct {
	a, b []rune
	b2j  map[rune][]int
}

func newMatcher(a, b []rune) *matcher {
	b2j := make(map[rune][]int)
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}
	return &matcher{a: a, b: b, b2j: b2j}
}

// matches counts matched runes within a[alo:ahi] and b[blo:bhi].
func (m *matcher) matches(alo, ahi, blo, bhi int) int {
	i, j, k := m.longest(alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	n := k
	if alo < i && blo < j {
		n += m.matches(alo, i, blo, j)
	}
	if i+k < ahi && j+k < bhi {
		n += m.matches(i+k, ahi, j+k, bhi)
	}
	return n
}

// longest finds the longest common block a[i:i+k] == b[j:j+k] in the given ranges.
func (m *matcher) longest(alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		next := make(map[int]int)
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestk
}
