package mapping

import "github.com/dudu/facemap/internal/face"

// Assignment pairs a face found in a frame with the source face that should
// replace it.
type Assignment struct {
	EntryID int
	Source  face.Face
	Target  face.Face
}

// Assign matches the faces detected in a frame against the table's targets.
// Entries are visited in order; each takes the unused detected face most
// similar to its target, provided the similarity reaches threshold. A
// detected face is used by at most one entry. Incomplete entries and entries
// with no match are skipped.
func Assign(t Table, detected []face.Face, threshold float32) []Assignment {
	used := make([]bool, len(detected))
	var out []Assignment

	for _, e := range t.entries {
		if !e.Complete() {
			continue
		}
		best, bestSim := -1, threshold
		for i := range detected {
			if used[i] {
				continue
			}
			sim := face.Similarity(&e.Target.Face, &detected[i])
			if sim >= bestSim {
				best, bestSim = i, sim
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		out = append(out, Assignment{
			EntryID: e.ID,
			Source:  e.Source.Face,
			Target:  detected[best],
		})
	}
	return out
}
