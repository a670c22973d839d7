package querycache

// Merge combines locally matched candidates with authoritative server results.
// Server records keep their order and come first; candidates follow in their
// own order, minus any that match a server record by ID or ExternalID.
// Merge(Merge(x, y), y) equals Merge(x, y).
func Merge[T Identified](candidates, server []T) []T {
	out := make([]T, 0, len(server)+len(candidates))
	out = append(out, server...)

	ids := make(map[string]struct{}, len(server))
	ext := make(map[string]struct{}, len(server))
	for _, s := range server {
		id := s.Identity()
		if id.ID != "" {
			ids[id.ID] = struct{}{}
		}
		if id.ExternalID != "" {
			ext[id.ExternalID] = struct{}{}
		}
	}
	for _, c := range candidates {
		id := c.Identity()
		if _, ok := ids[id.ID]; ok && id.ID != "" {
			continue
		}
		if _, ok := ext[id.ExternalID]; ok && id.ExternalID != "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
