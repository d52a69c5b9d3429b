package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"journalagent/store"
)

// NotesName is the tool name exposed to the model.
const NotesName = "manage_notes"

type notesArgs struct {
	Action  string `json:"action" jsonschema:"operation to perform"`
	NoteID  string `json:"note_id,omitempty" jsonschema:"note id, required for update and delete"`
	Title   string `json:"title,omitempty" jsonschema:"note title"`
	Body    string `json:"body,omitempty" jsonschema:"note text"`
	TradeID string `json:"trade_id,omitempty" jsonschema:"trade the note is about"`
	Limit   int    `json:"limit,omitempty" jsonschema:"max notes to list"`
}

// NewNotes creates the manage_notes tool. Notes are always scoped to the caller.
func NewNotes(notes store.NoteStore) (Tool, error) {
	return newTool(NotesName,
		"Create, list, update or delete the user's journal notes. Cite notes as <note-ref id=\"...\"/>.",
		map[string][]string{"action": {"create", "list", "update", "delete"}},
		func(ctx context.Context, a notesArgs, tc Context) Result {
			if tc.CallerIdentity == "" {
				return Failure("no caller identity")
			}
			switch a.Action {
			case "create":
				n, err := notes.CreateNote(ctx, store.Note{UserID: tc.CallerIdentity, Title: a.Title, Body: a.Body, TradeID: a.TradeID})
				if err != nil {
					return Failure("create note: %v", err)
				}
				return jsonResult("Note created", n)
			case "list":
				list, err := notes.ListNotes(ctx, tc.CallerIdentity, a.Limit)
				if err != nil {
					return Failure("list notes: %v", err)
				}
				return jsonResult(fmt.Sprintf("%d notes", len(list)), list)
			case "update":
				if a.NoteID == "" {
					return Failure("note_id is required for update")
				}
				n, err := notes.UpdateNote(ctx, store.Note{ID: a.NoteID, UserID: tc.CallerIdentity, Title: a.Title, Body: a.Body, TradeID: a.TradeID})
				if errors.Is(err, store.ErrNotFound) {
					return Failure("note %s not found", a.NoteID)
				}
				if err != nil {
					return Failure("update note: %v", err)
				}
				return jsonResult("Note updated", n)
			case "delete":
				if a.NoteID == "" {
					return Failure("note_id is required for delete")
				}
				if err := notes.DeleteNote(ctx, tc.CallerIdentity, a.NoteID); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Failure("note %s not found", a.NoteID)
					}
					return Failure("delete note: %v", err)
				}
				return Result{Text: fmt.Sprintf("Note %s deleted", a.NoteID)}
			default:
				return Failure("unknown action %q", a.Action)
			}
		})
}

func jsonResult(summary string, v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Failure("encode result: %v", err)
	}
	return Result{Text: summary + ": " + string(data)}
}
