//go:build fuse

package imgfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseNode is the host binding spec.md §1 names as an external collaborator:
// a thin adapter from go-fuse's node API onto *Session. It carries no state
// of its own beyond the resolved path, re-resolving through the engine on
// every call exactly as the stateless operation contract in spec §6.2
// requires ("no per-open handle table internal to the engine").
type fuseNode struct {
	fs.Inode
	sess *Session
	path string
}

var (
	_ fs.NodeLookuper  = (*fuseNode)(nil)
	_ fs.NodeReaddirer = (*fuseNode)(nil)
	_ fs.NodeGetattrer = (*fuseNode)(nil)
	_ fs.NodeOpener    = (*fuseNode)(nil)
	_ fs.NodeReader    = (*fuseNode)(nil)
	_ fs.NodeWriter    = (*fuseNode)(nil)
	_ fs.NodeSetattrer = (*fuseNode)(nil)
	_ fs.NodeCreater   = (*fuseNode)(nil)
	_ fs.NodeMkdirer   = (*fuseNode)(nil)
	_ fs.NodeUnlinker   = (*fuseNode)(nil)
	_ fs.NodeRmdirer    = (*fuseNode)(nil)
	_ fs.NodeRenamer    = (*fuseNode)(nil)
	_ fs.NodeReadlinker = (*fuseNode)(nil)
)

// Root returns the go-fuse root node backed by sess, suitable for
// fs.Mount(mountpoint, Root(sess), opts).
func Root(sess *Session) fs.InodeEmbedder {
	return &fuseNode{sess: sess, path: "/"}
}

func (n *fuseNode) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func attrToFuse(a Attr, out *fuse.Attr) {
	out.Size = uint64(a.Size)
	out.Nlink = uint32(a.NLink)
	out.Mode = uint32(a.Type.Mode())
}

func errnoFor(err error) syscall.Errno {
	switch err {
	case nil:
		return 0
	case ErrNotFound:
		return syscall.ENOENT
	case ErrNotADirectory:
		return syscall.ENOTDIR
	case ErrIsADirectory:
		return syscall.EISDIR
	case ErrNotEmpty:
		return syscall.ENOTEMPTY
	case ErrNameTooLong:
		return syscall.ENAMETOOLONG
	case ErrTableFull, ErrNoSpace:
		return syscall.ENOSPC
	case ErrInvalidArgument:
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	a, err := n.sess.Getattr(n.path)
	if err != nil {
		return errnoFor(err)
	}
	attrToFuse(a, &out.Attr)
	return 0
}

func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	a, err := n.sess.Getattr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	attrToFuse(a, &out.Attr)
	child := &fuseNode{sess: n.sess, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: uint32(a.Type.Mode())}), 0
}

func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	fdID, err := n.sess.Open(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	entries, err := n.sess.Readdir(fdID)
	if err != nil {
		return nil, errnoFor(err)
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, fuse.DirEntry{Name: e.Name()})
	}
	return fs.NewListDirStream(list), 0
}

func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if _, err := n.sess.Open(n.path); err != nil {
		return nil, 0, errnoFor(err)
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	fdID, err := n.sess.Open(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	data, err := n.sess.Read(fdID, len(dest), off)
	if err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *fuseNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	fdID, err := n.sess.Open(n.path)
	if err != nil {
		return 0, errnoFor(err)
	}
	written, err := n.sess.Write(fdID, data, off)
	if err != nil {
		return 0, errnoFor(err)
	}
	if need := off + int64(written); need > 0 {
		if a, gerr := n.sess.Getattr(n.path); gerr == nil && need > a.Size {
			_ = n.sess.Truncate(n.path, need)
		}
	}
	return uint32(written), 0
}

func (n *fuseNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		if err := n.sess.Truncate(n.path, int64(sz)); err != nil {
			return errnoFor(err)
		}
	}
	return n.Getattr(ctx, f, out)
}

func (n *fuseNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	if _, err := n.sess.Create(childPath); err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	a, err := n.sess.Getattr(childPath)
	if err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	attrToFuse(a, &out.Attr)
	child := &fuseNode{sess: n.sess, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: uint32(a.Type.Mode())}), nil, 0, 0
}

func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if _, err := n.sess.Mkdir(childPath); err != nil {
		return nil, errnoFor(err)
	}
	a, err := n.sess.Getattr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	attrToFuse(a, &out.Attr)
	child := &fuseNode{sess: n.sess, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: uint32(a.Type.Mode())}), 0
}

func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.sess.Unlink(n.childPath(name)))
}

func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.sess.Rmdir(n.childPath(name)))
}

func (n *fuseNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	np, ok := newParent.(*fuseNode)
	if !ok {
		return syscall.EXDEV
	}
	return errnoFor(n.sess.Rename(n.childPath(name), np.childPath(newName)))
}

func (n *fuseNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.sess.Readlink(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	return []byte(target), 0
}
