package completion

import (
	"time"

	"github.com/google/uuid"

	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// Output types of a submitted turn.
const (
	OutputQuickAnswer     = "quick_answer"
	OutputImageGeneration = "image-generation"
)

const (
	chatTitle = "新对话"

	// padding is the content of the placeholder pair sent ahead of a
	// single-message conversation.
	padding = " "
)

// treeBuilder renders OpenAI messages into the upstream message tree.
type treeBuilder struct {
	model      string
	outputType string
	now        func() time.Time
	newID      func() string

	// lastHistoryID is the frontier of the last built history.
	lastHistoryID string
}

func newTreeBuilder(model string, image bool) *treeBuilder {
	outputType := OutputQuickAnswer
	if image {
		outputType = OutputImageGeneration
	}
	return &treeBuilder{
		model:      model,
		outputType: outputType,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// flatten joins the text parts of msg and collects its images as files.
func flatten(msg types.Message) (string, []upstream.File) {
	files := []upstream.File{}
	for _, url := range msg.ImageURLs() {
		files = append(files, upstream.File{Type: "image", URL: url})
	}
	return msg.Text(), files
}

// history builds the conversation carrying every message but the last. A
// conversation of one message gets a blank user/assistant pair instead so
// that the new turn is never the first message of the chat.
func (b *treeBuilder) history(messages []types.Message) upstream.NewChat {
	ts := b.now().UnixMilli()
	tree := make(map[string]upstream.Message)

	var currentID string
	var parentID *string

	link := func(msg upstream.Message) {
		if parentID != nil {
			parent := tree[*parentID]
			parent.ChildrenIDs = []string{msg.ID}
			tree[*parentID] = parent
		}
		tree[msg.ID] = msg
		id := msg.ID
		parentID = &id
		currentID = id
	}

	for _, m := range messages[:len(messages)-1] {
		content, files := flatten(m)
		role := m.Role
		if role == "" {
			role = "user"
		}
		link(upstream.Message{
			ID:          b.newID(),
			ParentID:    parentID,
			ChildrenIDs: []string{},
			Role:        role,
			Content:     content,
			Files:       files,
			Timestamp:   ts,
			OutputType:  b.outputType,
			Models:      []string{b.model},
		})
	}

	if len(messages) == 1 {
		for _, role := range []string{"user", "assistant"} {
			link(upstream.Message{
				ID:          b.newID(),
				ParentID:    parentID,
				ChildrenIDs: []string{},
				Role:        role,
				Content:     padding,
				Files:       []upstream.File{},
				Timestamp:   ts,
				OutputType:  b.outputType,
				Models:      []string{b.model},
			})
		}
	}

	b.lastHistoryID = currentID
	return upstream.NewChat{
		ID:     "",
		Title:  chatTitle,
		Models: []string{b.model},
		Params: map[string]any{},
		History: upstream.History{
			CurrentID: currentID,
			Messages:  tree,
		},
		Messages:  []upstream.Message{},
		Tags:      []string{},
		Timestamp: ts,
	}
}

// turn builds the patch submitting last under frontier, followed by the
// empty assistant message the answer is written into.
func (b *treeBuilder) turn(last types.Message, frontier, sessionID string) upstream.ChatPatch {
	ts := b.now().Unix()
	userID := b.newID()
	assistantID := b.newID()
	content, files := flatten(last)
	modelIdx := 0

	return upstream.ChatPatch{
		CurrentID: assistantID,
		Messages: []upstream.Message{
			{
				ID:          userID,
				ParentID:    &frontier,
				ChildrenIDs: []string{assistantID},
				Role:        "user",
				Content:     content,
				Files:       files,
				Timestamp:   ts,
				Models:      []string{b.model},
				OutputType:  b.outputType,
			},
			{
				ID:          assistantID,
				ParentID:    &userID,
				ChildrenIDs: []string{},
				Role:        "assistant",
				Content:     "",
				Model:       b.model,
				ModelName:   b.model,
				ModelIdx:    &modelIdx,
				Timestamp:   ts,
			},
		},
		SessionID:   sessionID,
		Stream:      true,
		ToolServers: []any{},
		Features: upstream.Features{
			ImageGeneration: b.outputType == OutputImageGeneration,
		},
		Params:    map[string]any{},
		Variables: map[string]any{},
	}
}
