package registry_test

import (
	"strings"
	"testing"

	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

func TestDefault_CatalogOrder(t *testing.T) {
	want := []string{
		"signup", "signin", "fetchMe", "fetchNotice", "hideNotice",
		"fetchTimeline", "fetchPostDetail", "createPost", "postReply",
		"likePost", "repost", "quotePost", "searchPosts", "searchUsers",
	}
	got := registry.Default().Names()
	if len(got) != len(want) {
		t.Fatalf("got %d operations, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("operation %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefault_RequiredArguments(t *testing.T) {
	cases := map[string][]string{
		registry.Signup:          {"name", "email", "password"},
		registry.Signin:          {"email", "password"},
		registry.FetchMe:         nil,
		registry.FetchNotice:     nil,
		registry.HideNotice:      {"id"},
		registry.FetchTimeline:   nil,
		registry.FetchPostDetail: {"postId"},
		registry.CreatePost:      {"content"},
		registry.PostReply:       {"content", "replyToId"},
		registry.LikePost:        {"postId"},
		registry.Repost:          {"postId"},
		registry.QuotePost:       {"quotedPostId", "content"},
		registry.SearchPosts:     {"query"},
		registry.SearchUsers:     {"query"},
	}
	reg := registry.Default()
	for name, want := range cases {
		op, ok := reg.Lookup(name)
		if !ok {
			t.Errorf("%s: not registered", name)
			continue
		}
		got := op.Required()
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("%s required: got %v, want %v", name, got, want)
		}
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, ok := registry.Default().Lookup("deleteEverything"); ok {
		t.Error("expected unknown operation to be absent")
	}
	if registry.Default().Has("deleteEverything") {
		t.Error("Has should report false for unknown operation")
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	reg := registry.Default()
	ops := reg.List()
	for i := range ops {
		if ops[i].Name == registry.LikePost {
			ops[i].Params[0].Name = "mutated"
		}
	}
	op, _ := reg.Lookup(registry.LikePost)
	if op.Params[0].Name != "postId" {
		t.Fatalf("registry was mutated through List(): %q", op.Params[0].Name)
	}
}

func TestSchema_LikePost(t *testing.T) {
	op, _ := registry.Default().Lookup(registry.LikePost)
	schema := op.Schema()
	if schema["type"] != "object" {
		t.Errorf("type: got %v", schema["type"])
	}
	props := schema["properties"].(map[string]any)
	postID := props["postId"].(map[string]any)
	if postID["type"] != "number" {
		t.Errorf("postId type: got %v", postID["type"])
	}
	req := schema["required"].([]string)
	if len(req) != 1 || req[0] != "postId" {
		t.Errorf("required: got %v", req)
	}
}

func TestSchema_NoParamsOmitsRequired(t *testing.T) {
	op, _ := registry.Default().Lookup(registry.FetchMe)
	if _, ok := op.Schema()["required"]; ok {
		t.Error("operations without required params must not emit a required list")
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty": `operations: []`,
		"duplicate": `
operations:
  - {name: a, description: x}
  - {name: a, description: y}`,
		"bad type": `
operations:
  - name: a
    description: x
    params:
      - {name: p, type: object}`,
		"duplicate param": `
operations:
  - name: a
    description: x
    params:
      - {name: p, type: string}
      - {name: p, type: number}`,
		"no description": `
operations:
  - {name: a}`,
		"malformed": `operations: [`,
	}
	for name, doc := range cases {
		if _, err := registry.Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
