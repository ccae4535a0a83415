package server

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"baulot/internal/domain"
	"baulot/internal/engine"
)

// maxUploadBytes bounds the whole multipart request; the engine enforces
// the configured photo size on the file itself.
const maxUploadBytes = 12 << 20

type taskPath struct {
	TaskID string `path:"task_id"`
}

type taskBody struct {
	Body domain.Task `json:"body"`
}

func (h handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/trades/{trade_id}/tasks",
		Summary:       "Add a task to a trade",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		TradeID string            `path:"trade_id"`
		Body    CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.CreateTask(ctx, caller, input.TradeID, input.Body.input())
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Task as visible to the caller",
		Errors:      readErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.GetTask(ctx, caller, input.TaskID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task status or details",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.UpdateTask(ctx, caller, input.TaskID, input.Body.patch())
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeleteTask(ctx, caller, input.TaskID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerPhotos(api huma.API) {
	type photoBody struct {
		Body domain.Photo `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "upload-photo",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/photos",
		Summary:       "Upload a task photo",
		Description:   "Multipart form with a `file` part plus optional `caption` and `visibility` (internal or client).",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxUploadBytes,
		Errors:        append([]int{http.StatusTooManyRequests, http.StatusServiceUnavailable}, mutationErrors...),
	}, func(ctx context.Context, input *struct {
		TaskID  string `path:"task_id"`
		RawBody multipart.Form
	}) (*photoBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := limit(h.uploadLimit, caller.ID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		up, err := photoUpload(&input.RawBody)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		ph, err := h.engine.UploadPhoto(ctx, caller, input.TaskID, up)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &photoBody{Body: ph}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-photo",
		Method:      http.MethodPatch,
		Path:        "/photos/{photo_id}",
		Summary:     "Change photo caption or visibility",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PhotoID string             `path:"photo_id"`
		Body    UpdatePhotoRequest `json:"body"`
	}) (*photoBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ph, err := h.engine.UpdatePhoto(ctx, caller, input.PhotoID, engine.PhotoPatch(input.Body))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &photoBody{Body: ph}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-photo",
		Method:        http.MethodDelete,
		Path:          "/photos/{photo_id}",
		Summary:       "Delete photo and its stored object",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		PhotoID string `path:"photo_id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeletePhoto(ctx, caller, input.PhotoID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-photo-file",
		Method:      http.MethodGet,
		Path:        "/photos/{photo_id}/file",
		Summary:     "Photo bytes, if the photo is visible to the caller",
		Errors:      readErrors,
		Responses: map[string]*huma.Response{
			"200": {Description: "Photo", Content: map[string]*huma.MediaType{"image/*": {}}},
		},
	}, func(ctx context.Context, input *struct {
		PhotoID string `path:"photo_id"`
	}) (*huma.StreamResponse, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ph, r, err := h.engine.OpenPhoto(ctx, caller, input.PhotoID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &huma.StreamResponse{Body: func(hctx huma.Context) {
			defer r.Close()
			hctx.SetHeader("Content-Type", ph.ContentType)
			hctx.SetHeader("Cache-Control", "private, no-store")
			if _, err := io.Copy(hctx.BodyWriter(), r); err != nil {
				h.logger.Warn("stream photo", "photo_id", ph.ID, "error", err)
			}
		}}, nil
	})
}

// photoUpload reads the single file part of form into memory.
func photoUpload(form *multipart.Form) (engine.PhotoUpload, error) {
	files := form.File["file"]
	if len(files) != 1 {
		return engine.PhotoUpload{}, engine.ValidationError{Field: "file", Message: "exactly one file part required"}
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return engine.PhotoUpload{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return engine.PhotoUpload{}, fmt.Errorf("read upload: %w", err)
	}
	up := engine.PhotoUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
		Caption:     formValue(form, "caption"),
		Visibility:  domain.Visibility(formValue(form, "visibility")),
	}
	return up, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h handlers) registerComments(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := h.engine.CreateComment(ctx, caller, input.TaskID, engine.CommentInput(input.Body))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/comments",
		Summary:     "Comments visible to the caller",
		Errors:      readErrors,
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.engine.ListComments(ctx, caller, input.TaskID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: items}, nil
	})
}
