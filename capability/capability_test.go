package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorIdentity(t *testing.T) {
	a := Descriptor{ProcessID: "com.example.date", EntryID: "DateService", CapabilityType: "date"}
	b := Descriptor{ProcessID: "com.example.date", EntryID: "DateService", CapabilityType: "unknown"}
	c := Descriptor{ProcessID: "com.example.date", EntryID: "Other", CapabilityType: "date"}

	assert.Equal(t, "com.example.date/DateService", a.Key())
	assert.True(t, a.SameIdentity(b))
	assert.False(t, a.SameIdentity(c))
	assert.NotEqual(t, a, b, "structural equality includes the capability type")
}

func TestDescriptorCodec(t *testing.T) {
	ds := []Descriptor{
		{ProcessID: "p1", EntryID: "e1", CapabilityType: "date"},
		{ProcessID: "p2", EntryID: "e2", CapabilityType: "time"},
	}
	data, err := EncodeDescriptors(ds)
	require.NoError(t, err)

	records, err := SplitRecords(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	for i, raw := range records {
		d, err := DecodeDescriptor(raw)
		require.NoError(t, err)
		assert.Equal(t, ds[i], d)
	}

	empty, err := EncodeDescriptors(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestDecodeDescriptorMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not an object", `42`, "decode descriptor"},
		{"missing process", `{"entryId":"e","capabilityType":"date"}`, "missing processId"},
		{"missing entry", `{"processId":"p","capabilityType":"date"}`, "missing entryId"},
		{"missing type", `{"processId":"p","entryId":"e"}`, "missing capabilityType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDescriptor([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestContentHelpers(t *testing.T) {
	errItem := ErrorContent("Unknown tool: %s", "unknown_tool")
	assert.True(t, errItem.IsError)
	assert.Equal(t, "Unknown tool: unknown_tool", errItem.Payload)

	found, ok := Errors([]Content{TextContent("ok"), errItem})
	require.True(t, ok)
	assert.Equal(t, errItem, found)

	_, ok = Errors([]Content{TextContent("ok")})
	assert.False(t, ok)

	img := ImageContent([]byte("png"), "image/png")
	assert.Equal(t, KindImage, img.Kind)
	assert.Equal(t, "cG5n", img.Payload)
}

func TestContentsCodec(t *testing.T) {
	in := []Content{TextContent("hello"), JSONContent(`{"a":1}`), ErrorContent("boom")}
	data, err := EncodeContents(in)
	require.NoError(t, err)

	out, err := DecodeContents(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = DecodeContents("[]")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = DecodeContents("{")
	require.Error(t, err)
}

func TestArgs(t *testing.T) {
	args, err := ParseArgs(`{"title":"Standup","durationMinutes":30,"days":"7","ratio":1.5}`)
	require.NoError(t, err)

	assert.Equal(t, "Standup", args.String("title"))
	assert.Equal(t, 30, args.Int("durationMinutes"))
	assert.Equal(t, 7, args.Int("days"))
	assert.Equal(t, "", args.OptString("location", ""))
	require.NoError(t, args.Err())

	args.Int("ratio")
	require.Error(t, args.Err())
	assert.Contains(t, args.Err().Error(), `"ratio"`)
}

func TestArgsMissingField(t *testing.T) {
	args, err := ParseArgs(`{"title":"Standup"}`)
	require.NoError(t, err)

	args.String("day")
	args.String("startTime")
	require.Error(t, args.Err())
	assert.Contains(t, args.Err().Error(), `missing required field "day"`, "first failure wins")
}

func TestParseArgsMalformed(t *testing.T) {
	_, err := ParseArgs(`{"title":`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse arguments")

	_, err = ParseArgs(`[1,2]`)
	require.Error(t, err)

	args, err := ParseArgs("")
	require.NoError(t, err)
	assert.False(t, args.Has("anything"))
}
