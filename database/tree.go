package database

// helpers for JSON trees held as nested map[string]any

func treeGet(node any, segments []string) (any, bool) {
	cur := node
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// treeEnsure walks to segments creating objects on the way, replacing scalars.
func treeEnsure(root map[string]any, segments []string) map[string]any {
	cur := root
	for _, seg := range segments {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	return cur
}

// treeDelete removes the node at segments and prunes parents left empty.
// It returns true when root itself became empty.
func treeDelete(root map[string]any, segments []string) bool {
	if len(segments) == 0 {
		for k := range root {
			delete(root, k)
		}
		return true
	}
	if len(segments) == 1 {
		delete(root, segments[0])
		return len(root) == 0
	}
	child, ok := root[segments[0]].(map[string]any)
	if !ok {
		return len(root) == 0
	}
	if treeDelete(child, segments[1:]) {
		delete(root, segments[0])
	}
	return len(root) == 0
}

// treeMerge applies a shallow merge onto target; nil values remove keys.
func treeMerge(target map[string]any, fields map[string]any) {
	for k, v := range fields {
		if v == nil {
			delete(target, k)
			continue
		}
		target[k] = v
	}
}

// treeSet places value at segments below root.
func treeSet(root map[string]any, segments []string, value any) {
	if len(segments) == 0 {
		return
	}
	parent := treeEnsure(root, segments[:len(segments)-1])
	parent[segments[len(segments)-1]] = value
}
