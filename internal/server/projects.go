package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"baulot/internal/domain"
	"baulot/internal/export"
	"baulot/internal/progress"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

var readErrors = []int{
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type projectBody struct {
	Body domain.Project `json:"body"`
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*projectBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.CreateProject(ctx, caller, input.Body.input())
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectSummary `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.engine.ListProjects(ctx, caller)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		out := make([]ProjectSummary, 0, len(items))
		for _, p := range items {
			out = append(out, projectSummary(p))
		}
		return &struct {
			Body []ProjectSummary `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Project with trades, tasks, photos and comments visible to the caller",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*projectBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.GetProject(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*projectBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.UpdateProject(ctx, caller, input.ProjectID, input.Body.patch())
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project with all trades, tasks and photos",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeleteProject(ctx, caller, input.ProjectID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progress",
		Summary:     "Progress over the trades visible to the caller",
		Errors:      readErrors,
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body progress.Summary `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := h.engine.Progress(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body progress.Summary `json:"body"`
		}{Body: sum}, nil
	})
}

func (h handlers) registerTrades(api huma.API) {
	type tradePath struct {
		ProjectID string `path:"project_id"`
		TradeID   string `path:"trade_id"`
	}
	type tradeBody struct {
		Body domain.Trade `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-trade",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/trades",
		Summary:       "Add a trade to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateTradeRequest `json:"body"`
	}) (*tradeBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tr, err := h.engine.CreateTrade(ctx, caller, input.ProjectID, input.Body.input())
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &tradeBody{Body: tr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-trade",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/trades/{trade_id}",
		Summary:     "Update trade",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		TradeID   string             `path:"trade_id"`
		Body      UpdateTradeRequest `json:"body"`
	}) (*tradeBody, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tr, err := h.engine.UpdateTrade(ctx, caller, input.ProjectID, input.TradeID, input.Body.patch())
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &tradeBody{Body: tr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-trade",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/trades/{trade_id}",
		Summary:       "Delete trade with its tasks",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *tradePath) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeleteTrade(ctx, caller, input.ProjectID, input.TradeID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-trades",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/trades/order",
		Summary:     "Set the trade sequence",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      ReorderTradesRequest `json:"body"`
	}) (*struct {
		Body []domain.Trade `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		trades, err := h.engine.ReorderTrades(ctx, caller, input.ProjectID, input.Body.TradeIDs)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body []domain.Trade `json:"body"`
		}{Body: trades}, nil
	})
}

type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func (h handlers) registerExports(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "project-report",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/report.pdf",
		Summary:     "PDF progress report",
		Errors:      readErrors,
		Responses: map[string]*huma.Response{
			"200": {Description: "PDF report", Content: map[string]*huma.MediaType{"application/pdf": {}}},
		},
	}, func(ctx context.Context, input *projectPath) (*fileOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.GetProject(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		var buf bytes.Buffer
		if err := export.WriteReport(&buf, p, time.Now()); err != nil {
			return nil, h.handleError(ctx, fmt.Errorf("render report: %w", err))
		}
		return &fileOutput{
			ContentType:        "application/pdf",
			ContentDisposition: fmt.Sprintf(`attachment; filename="project-%s.pdf"`, p.ID),
			Body:               buf.Bytes(),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-calendar",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/calendar.ics",
		Summary:     "iCalendar feed of trade schedules and task due dates",
		Errors:      readErrors,
		Responses: map[string]*huma.Response{
			"200": {Description: "iCalendar", Content: map[string]*huma.MediaType{"text/calendar": {}}},
		},
	}, func(ctx context.Context, input *projectPath) (*fileOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.GetProject(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		var buf bytes.Buffer
		if err := export.WriteICS(&buf, p, time.Now()); err != nil {
			return nil, h.handleError(ctx, fmt.Errorf("render calendar: %w", err))
		}
		return &fileOutput{
			ContentType:        "text/calendar; charset=utf-8",
			ContentDisposition: fmt.Sprintf(`attachment; filename="project-%s.ics"`, p.ID),
			Body:               buf.Bytes(),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-calendar",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/calendar/publish",
		Summary:     "Publish the schedule to the configured Google calendar",
		Errors:      append([]int{http.StatusServiceUnavailable}, mutationErrors...),
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body PublishResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.engine.PublishCalendar(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body PublishResponse `json:"body"`
		}{Body: PublishResponse{Published: n}}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Project audit log, newest first",
		Errors:      append([]int{http.StatusBadRequest, http.StatusForbidden}, readErrors...),
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := h.engine.ListEvents(ctx, caller, input.ProjectID, before, limit+1)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
