package collab

import (
	"fmt"
	"testing"
)

func TestRooms_StateAbsentBeforeFirstEdit(t *testing.T) {
	r := NewRooms()
	if _, ok := r.State("d-1"); ok {
		t.Fatalf("State() ok = true, want false for unknown room")
	}
}

func TestRooms_FirstEditInitializesRoom(t *testing.T) {
	r := NewRooms()
	// 房间不存在时先初始化 {content:"", version:0} 再应用，所以第一次编辑版本是 1
	if v := r.ApplyEdit("d-1", "hello"); v != 1 {
		t.Fatalf("ApplyEdit() version = %d, want 1", v)
	}
	st, ok := r.State("d-1")
	if !ok {
		t.Fatalf("State() ok = false after edit")
	}
	if st.Content != "hello" || st.Version != 1 {
		t.Fatalf("State() = {%q, %d}, want {%q, 1}", st.Content, st.Version, "hello")
	}
}

func TestRooms_VersionCountsEditEvents(t *testing.T) {
	r := NewRooms()
	// 版本号只数事件次数，与内容大小无关
	const n = 57
	for i := 0; i < n; i++ {
		r.ApplyEdit("d-1", fmt.Sprintf("content %d", i))
	}
	st, _ := r.State("d-1")
	if st.Version != n {
		t.Fatalf("version after %d edits = %d, want %d", n, st.Version, n)
	}
}

func TestRooms_LastWriteWins(t *testing.T) {
	r := NewRooms()
	r.ApplyEdit("d-1", "first draft with plenty of text")
	r.ApplyEdit("d-1", "x")
	st, _ := r.State("d-1")
	// 整篇覆盖，不做合并：后到的编辑完整覆盖先到的内容
	if st.Content != "x" {
		t.Fatalf("content = %q, want %q", st.Content, "x")
	}
	if st.Version != 2 {
		t.Fatalf("version = %d, want 2", st.Version)
	}
}

func TestRooms_IndependentPerDocument(t *testing.T) {
	r := NewRooms()
	r.ApplyEdit("d-1", "a")
	r.ApplyEdit("d-1", "b")
	r.ApplyEdit("d-2", "c")
	st1, _ := r.State("d-1")
	st2, _ := r.State("d-2")
	if st1.Version != 2 || st2.Version != 1 {
		t.Fatalf("versions = %d/%d, want 2/1", st1.Version, st2.Version)
	}
}
