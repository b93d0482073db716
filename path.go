package imgfs

import "strings"

// splitPath separates the leaf name from its parent path on the last "/"
// (spec §4.6 "Name splitting"). If nothing remains before the last "/", the
// parent is "/".
func splitPath(p string) (parent, name string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "/", p
	}
	name = p[i+1:]
	parent = p[:i]
	if parent == "" {
		parent = "/"
	}
	return parent, name
}

// resolve walks an absolute path from the root, one component at a time,
// returning the final descriptor (spec §4.6). Symlinks are never followed
// automatically; the caller decides whether to dereference.
func (sess *Session) resolve(p string) (*FileDescriptor, int32, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, 0, ErrInvalidArgument
	}
	cur, err := sess.getDescriptor(0)
	if err != nil {
		return nil, 0, err
	}
	curID := int32(0)
	if p == "/" {
		return cur, curID, nil
	}

	for _, comp := range strings.Split(strings.Trim(p, "/"), "/") {
		if comp == "" {
			continue
		}
		if cur.Type != Directory {
			return nil, 0, ErrNotADirectory
		}
		fdID, _, found, err := sess.findEntry(cur, comp)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			return nil, 0, ErrNotFound
		}
		next, err := sess.getDescriptor(fdID)
		if err != nil {
			return nil, 0, err
		}
		cur, curID = next, fdID
	}
	return cur, curID, nil
}
