package domain

// Node is the shared shape of folders and tags: a titled entry in a parent chain.
type Node struct {
	ID       EntityID  `json:"id" validate:"required"`
	Title    string    `json:"title" validate:"required"`
	ParentID *EntityID `json:"parent_id"`
	Color    string    `json:"color"`
	Icon     string    `json:"icon"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.ParentID == nil || n.ParentID.IsZero() }

// Folder is a hierarchical container for files. IDs are caller-supplied.
type Folder Node

// Tag is a hierarchical label. Files reference tags through their Tags array.
type Tag Node

// NodePatch updates only the fields that are present.
type NodePatch struct {
	Title    *string            `json:"title,omitempty"`
	ParentID Nullable[EntityID] `json:"parent_id"`
	Color    *string            `json:"color,omitempty"`
	Icon     *string            `json:"icon,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NodePatch) IsEmpty() bool {
	return p.Title == nil && !p.ParentID.Set && p.Color == nil && p.Icon == nil
}

// FolderPatch updates a folder.
type FolderPatch = NodePatch

// TagPatch updates a tag.
type TagPatch = NodePatch
