package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdesk/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestDecodeWithoutPayload(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(""), json.RawMessage("null"), json.RawMessage("  null ")} {
		rec := models.TaskRecord{TaskCore: models.TaskCore{ID: 7, Title: "plain"}, ExtendedData: raw}
		task, err := Decode(rec)
		require.NoError(t, err)
		assert.Equal(t, int64(7), task.ID)
		assert.True(t, task.Extended.IsZero(), "payload %q should decode to no extended fields", string(raw))
	}
}

func TestDecodeMergesPayload(t *testing.T) {
	rec := models.TaskRecord{
		TaskCore:     models.TaskCore{ID: 3, Title: "merge"},
		ExtendedData: json.RawMessage(`{"comments":[{"content":"hi"}],"depends_on":[1,2],"template_id":9}`),
	}

	task, err := Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, "merge", task.Title)
	assert.Equal(t, []models.TaskComment{{Content: "hi"}}, task.CommentList())
	assert.Equal(t, []int64{1, 2}, task.Dependencies())
	require.NotNil(t, task.TemplateID)
	assert.Equal(t, int64(9), *task.TemplateID)
	assert.Nil(t, task.Attachments)
	assert.Nil(t, task.Subtasks)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := Decode(models.TaskRecord{ExtendedData: json.RawMessage(`{"comments":`)})
	assert.Error(t, err)

}

func TestDecodeAllKeepsRowsWithBadPayload(t *testing.T) {
	tasks, err := DecodeAll([]models.TaskRecord{
		{TaskCore: models.TaskCore{ID: 4, Title: "broken"}, ExtendedData: json.RawMessage(`[]`)},
		{TaskCore: models.TaskCore{ID: 5, Title: "fine"}, ExtendedData: json.RawMessage(`{"depends_on":[4]}`)},
	})
	assert.ErrorContains(t, err, "task 4")
	require.Len(t, tasks, 2)
	assert.Equal(t, "broken", tasks[0].Title)
	assert.True(t, tasks[0].Extended.IsZero())
	assert.Equal(t, []int64{4}, tasks[1].Dependencies())

	tasks, err = DecodeAll([]models.TaskRecord{{TaskCore: models.TaskCore{ID: 6}}})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestEncodePatchSplitsFields(t *testing.T) {
	title := "renamed"
	patch := models.TaskPatch{
		TaskCorePatch: models.TaskCorePatch{Title: &title},
		Extended: models.Extended{
			Comments: &[]models.TaskComment{{Content: "hi"}},
		},
	}

	core, payload, err := EncodePatch(patch)
	require.NoError(t, err)
	assert.Equal(t, &title, core.Title)
	assert.JSONEq(t, `{"comments":[{"content":"hi"}]}`, string(payload))
}

func TestEncodePatchWithoutExtendedLeavesPayloadNil(t *testing.T) {
	status := models.StatusDone
	core, payload, err := EncodePatch(models.TaskPatch{TaskCorePatch: models.TaskCorePatch{Status: &status}})
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, &status, core.Status)
}

func TestEncodeKeepsEmptyGroups(t *testing.T) {
	payload, err := Encode(models.Extended{Subtasks: &[]models.Subtask{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"subtasks":[]}`, string(payload))
}

func TestEncodeNewStripsExtended(t *testing.T) {
	nt := models.NewTask{
		Title:    "new",
		Status:   models.StatusTodo,
		Priority: models.PriorityLow,
		Extended: models.Extended{DependsOn: &[]int64{5}},
	}

	core, payload, err := EncodeNew(nt)
	require.NoError(t, err)
	assert.True(t, core.Extended.IsZero())
	assert.Equal(t, "new", core.Title)
	assert.JSONEq(t, `{"depends_on":[5]}`, string(payload))
}

func TestRoundTrip(t *testing.T) {
	at := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	cases := map[string]models.Extended{
		"empty groups": {
			Comments:    &[]models.TaskComment{},
			Attachments: &[]models.TaskAttachment{},
			Subtasks:    &[]models.Subtask{},
			DependsOn:   &[]int64{},
		},
		"full": {
			Comments: &[]models.TaskComment{
				{ID: 1, TaskID: 10, UserID: "u1", AuthorName: "Priya Kumar", Content: "first", CreatedAt: at},
				{ID: 2, TaskID: 10, UserID: "u2", AuthorName: "Arjun Das", Content: "second", CreatedAt: at.Add(time.Hour)},
			},
			Attachments: &[]models.TaskAttachment{
				{ID: 1, TaskID: 10, Filename: "design.pdf", FileURL: "files/design.pdf", FileSize: 2048, UploadedAt: at, UploadedBy: "u1"},
			},
			Subtasks: &[]models.Subtask{
				{ID: 1, ParentTaskID: 10, Title: "wire form", Completed: true, CreatedAt: at},
				{ID: 2, ParentTaskID: 10, Title: "add tests"},
			},
			DependsOn:  &[]int64{11, 12},
			TemplateID: ptr(int64(3)),
		},
		"template only": {TemplateID: ptr(int64(0))},
	}

	for name, ext := range cases {
		t.Run(name, func(t *testing.T) {
			payload, err := Encode(ext)
			require.NoError(t, err)

			task, err := Decode(models.TaskRecord{TaskCore: models.TaskCore{ID: 10}, ExtendedData: payload})
			require.NoError(t, err)
			assert.Equal(t, ext, task.Extended)
		})
	}
}

func TestPatchReplacesWholeGroup(t *testing.T) {
	// A patch carrying only comments produces a payload with only comments,
	// so attachments stored earlier are dropped by the replacement.
	_, payload, err := EncodePatch(models.TaskPatch{Extended: models.Extended{
		Comments: &[]models.TaskComment{{Content: "hi"}},
	}})
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &keys))
	assert.Len(t, keys, 1)
	assert.Contains(t, keys, "comments")
}
