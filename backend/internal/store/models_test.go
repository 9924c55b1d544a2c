package store

import "testing"

func permDoc() *Document {
	return &Document{
		DocID:   "d-1",
		OwnerID: 1,
		Collaborators: []DocumentCollaborator{
			{DocID: "d-1", UserID: 2, Permission: PermissionWrite},
			{DocID: "d-1", UserID: 3, Permission: PermissionRead},
		},
	}
}

func TestDocument_OwnerHasFullAccess(t *testing.T) {
	d := permDoc()
	if !d.IsOwner(1) || !d.CanRead(1) || !d.CanWrite(1) {
		t.Fatalf("owner must have full access")
	}
}

func TestDocument_WriteCollaborator(t *testing.T) {
	d := permDoc()
	if !d.CanRead(2) || !d.CanWrite(2) {
		t.Fatalf("write collaborator must read and write")
	}
	if d.IsOwner(2) {
		t.Fatalf("collaborator is not owner")
	}
}

func TestDocument_ReadCollaboratorCannotWrite(t *testing.T) {
	d := permDoc()
	if !d.CanRead(3) {
		t.Fatalf("read collaborator must read")
	}
	if d.CanWrite(3) {
		t.Fatalf("read collaborator must not write")
	}
}

func TestDocument_StrangerAndPublic(t *testing.T) {
	d := permDoc()
	if d.CanRead(99) || d.CanWrite(99) {
		t.Fatalf("stranger has no access to private doc")
	}
	d.IsPublic = true
	// 公开只给读，不给写
	if !d.CanRead(99) {
		t.Fatalf("public doc must be readable by anyone")
	}
	if d.CanWrite(99) {
		t.Fatalf("public doc must not be writable by stranger")
	}
}
