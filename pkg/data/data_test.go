package data

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/reflow/pkg/validator"
)

type person struct {
	Name string
	Age  int
	Tags []string
	note string
}

func TestGetPathAcrossShapes(t *testing.T) {
	clock := validator.NewClock()
	inner := ObjectFrom(clock, map[string]any{"city": "Lisbon"})
	root := map[string]any{
		"user":   &person{Name: "Ada", Age: 36, Tags: []string{"a", "b"}},
		"home":   inner,
		"list":   []any{"x", "y", "z"},
		"nested": map[string]int{"n": 7},
	}

	var p Paths
	require.Equal(t, "Ada", p.GetPath(root, "user.name"))
	require.Equal(t, 36, p.GetPath(root, "user.Age"))
	require.Equal(t, "b", p.GetPath(root, "user.tags.1"))
	require.Equal(t, 2, p.GetPath(root, "user.tags.length"))
	require.Equal(t, "Lisbon", p.GetPath(root, "home.city"))
	require.Equal(t, "z", p.GetPath(root, "list.2"))
	require.Equal(t, 3, p.GetPath(root, "list.length"))
	require.Equal(t, 7, p.GetPath(root, "nested.n"))

	require.Nil(t, p.GetPath(root, "missing.deeper.still"))
	require.Nil(t, p.GetPath(root, "list.9"))
	require.Nil(t, p.GetPath(root, "user.note"))
}

func TestSetPath(t *testing.T) {
	clock := validator.NewClock()
	obj := NewObject(clock)
	u := &person{Name: "Ada"}
	root := map[string]any{"obj": obj, "user": u, "list": []any{1, 2}}

	var p Paths
	require.Equal(t, "v", p.SetPath(root, "obj.k", "v"))
	require.Equal(t, "v", obj.GetKey("k"))

	require.Equal(t, "Grace", p.SetPath(root, "user.name", "Grace"))
	require.Equal(t, "Grace", u.Name)

	require.Equal(t, 9, p.SetPath(root, "list.0", 9))
	require.Equal(t, []any{9, 2}, root["list"])

	require.Nil(t, p.SetPath(root, "nope.k", 1))
	require.Nil(t, p.SetPath(root, "user.name", 42))
}

func TestIsDict(t *testing.T) {
	clock := validator.NewClock()
	require.True(t, IsDict(NewObject(clock)))
	require.True(t, IsDict(map[string]any{}))
	require.True(t, IsDict([]any{}))
	require.True(t, IsDict(&person{}))
	require.True(t, IsDict(person{}))

	require.False(t, IsDict(nil))
	require.False(t, IsDict("str"))
	require.False(t, IsDict(3))
	require.False(t, IsDict((*person)(nil)))
}

func TestObjectTracksReadsAndWrites(t *testing.T) {
	clock := validator.NewClock()
	obj := ObjectFrom(clock, map[string]any{"a": 1})

	var tag validator.Tag
	tag = clock.Track(func() { obj.GetKey("a") })
	snapshot := clock.Current()
	require.True(t, validator.Validate(tag, snapshot))

	obj.SetKey("b", 2)
	require.True(t, validator.Validate(tag, snapshot), "unrelated key must not invalidate")

	obj.SetKey("a", 3)
	require.False(t, validator.Validate(tag, snapshot))
}

func TestObjectAbsentKeyIsTracked(t *testing.T) {
	clock := validator.NewClock()
	obj := NewObject(clock)

	tag := clock.Track(func() { require.Nil(t, obj.GetKey("later")) })
	snapshot := clock.Current()

	obj.SetKey("later", true)
	require.False(t, validator.Validate(tag, snapshot))
}

func TestFromYAML(t *testing.T) {
	clock := validator.NewClock()
	doc := `
title: Hello
author:
  name: Ada
  langs: [go, lisp]
count: 3
`
	v, err := FromYAML(clock, strings.NewReader(doc))
	require.NoError(t, err)

	obj, ok := v.(*Object)
	require.True(t, ok)
	require.Equal(t, []string{"author", "count", "title"}, obj.Keys())

	var p Paths
	require.Equal(t, "Hello", p.GetPath(v, "title"))
	require.Equal(t, "Ada", p.GetPath(v, "author.name"))
	require.Equal(t, "lisp", p.GetPath(v, "author.langs.1"))
	require.Equal(t, 3, p.GetPath(v, "count"))

	require.Equal(t, map[string]any{
		"title":  "Hello",
		"count":  3,
		"author": map[string]any{"name": "Ada", "langs": []any{"go", "lisp"}},
	}, obj.Snapshot())
}

func TestFromYAMLEmptyDocument(t *testing.T) {
	v, err := FromYAML(validator.NewClock(), strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, 0, v.(*Object).Len())
}
