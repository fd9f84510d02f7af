package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/modelpick/modelpick/internal/advisor"
	"github.com/modelpick/modelpick/internal/catalog"
	"github.com/modelpick/modelpick/internal/huggingface"
	"github.com/modelpick/modelpick/internal/kaggle"
	"github.com/modelpick/modelpick/internal/session"
)

const (
	sessionIDParamName = "session_id"
	sourceParamName    = "source"
	queryParamName     = "query"
	limitParamName     = "limit"

	searchSourceHuggingFace = "huggingface"
	searchSourceKaggle      = "kaggle"
	defaultSearchLimit      = 10
)

// TaskAdvisor is the slice of the LLM advisor the analyze route needs.
type TaskAdvisor interface {
	ParseTask(ctx context.Context, description string) (advisor.TaskAnalysis, error)
}

// HubSearcher searches the Hugging Face dataset catalog.
type HubSearcher interface {
	SearchDatasets(ctx context.Context, query, taskCategory string, limit int) ([]huggingface.DatasetSummary, error)
}

// KaggleSearcher searches the Kaggle dataset catalog.
type KaggleSearcher interface {
	SearchDatasets(ctx context.Context, query, sortBy string, limit int) ([]kaggle.DatasetSummary, error)
}

// auditSession appends one line to the session named by the request, if any.
// A request without a session id is served without auditing; naming an
// unknown session is an error.
func auditSession(c echo.Context, sessions *session.Store, explicitID, line string) error {
	sessionID := strings.TrimSpace(explicitID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.QueryParam(sessionIDParamName))
	}
	if sessionID == "" {
		return nil
	}
	if err := sessions.Append(sessionID, line); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return notFound(fmt.Sprintf("unknown session %q", sessionID))
		}
		return internalServerError(err)
	}
	return nil
}

func catalogLookupError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, catalog.ErrCategoryNotFound), errors.Is(err, catalog.ErrSubtaskNotFound):
		return notFound(err.Error())
	default:
		return internalServerError(err)
	}
}

func CreateSessionHandler(sessions *session.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID, err := sessions.Create()
		if err != nil {
			return internalServerError(err)
		}
		if err := sessions.Append(sessionID, "NEW SESSION "+sessionID); err != nil {
			return internalServerError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"session_id": sessionID})
	}
}

func ListCategoriesHandler(table *catalog.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string][]string{"categories": table.Categories()})
	}
}

func ListSubtasksHandler(table *catalog.Catalog, sessions *session.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		category := c.Param("category")
		subtasks, err := table.Subtasks(category)
		if err != nil {
			return catalogLookupError(err)
		}
		if auditErr := auditSession(c, sessions, "", "task_type = "+category); auditErr != nil {
			return auditErr
		}
		return c.JSON(http.StatusOK, map[string][]string{"subtasks": subtasks})
	}
}

func GetTaskInfoHandler(table *catalog.Catalog, sessions *session.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		category := c.Param("category")
		subtask := c.Param("subtask")
		info, err := table.TaskInfo(category, subtask)
		if err != nil {
			return catalogLookupError(err)
		}
		if auditErr := auditSession(c, sessions, "", fmt.Sprintf("subtask = %s/%s", category, subtask)); auditErr != nil {
			return auditErr
		}
		return c.JSON(http.StatusOK, info)
	}
}

func ListDatasetsHandler(table *catalog.Catalog, sessions *session.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		category := c.Param("category")
		subtask := c.Param("subtask")
		source := c.QueryParam(sourceParamName)
		if source == "" {
			source = catalog.SourceAll
		}
		datasets, err := table.Datasets(category, subtask, source)
		if err != nil {
			return catalogLookupError(err)
		}
		if auditErr := auditSession(c, sessions, "", fmt.Sprintf("subtask = %s/%s", category, subtask)); auditErr != nil {
			return auditErr
		}
		return c.JSON(http.StatusOK, map[string][]string{"datasets": datasets})
	}
}

func ListModelsHandler(table *catalog.Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		models, err := table.Models(c.Param("category"), c.Param("subtask"))
		if err != nil {
			return catalogLookupError(err)
		}
		return c.JSON(http.StatusOK, map[string][]string{"models": models})
	}
}

type recommendationsRequest struct {
	SessionID     string `json:"session_id"`
	FastTraining  bool   `json:"fast_training"`
	Interpretable bool   `json:"interpretable"`
	HighAccuracy  bool   `json:"high_accuracy"`
}

func RecommendationsHandler(table *catalog.Catalog, sessions *session.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request recommendationsRequest
		if err := c.Bind(&request); err != nil {
			return badRequest("request body must be a JSON object of criteria switches")
		}
		criteria := catalog.Criteria{
			FastTraining:  request.FastTraining,
			Interpretable: request.Interpretable,
			HighAccuracy:  request.HighAccuracy,
		}

		category := c.Param("category")
		results, err := table.FilterByCriteria(category, criteria)
		if err != nil {
			return catalogLookupError(err)
		}
		if auditErr := auditSession(c, sessions, request.SessionID, fmt.Sprintf("criteria = %s fast_training=%t interpretable=%t high_accuracy=%t",
			category, criteria.FastTraining, criteria.Interpretable, criteria.HighAccuracy)); auditErr != nil {
			return auditErr
		}
		return c.JSON(http.StatusOK, results)
	}
}

type analyzeRequest struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
}

func AnalyzeTaskHandler(taskAdvisor TaskAdvisor, sessions *session.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request analyzeRequest
		if err := c.Bind(&request); err != nil {
			return badRequest("request body must be JSON with a task field")
		}
		if strings.TrimSpace(request.Task) == "" {
			return badRequest("task description is empty")
		}
		if auditErr := auditSession(c, sessions, request.SessionID, "user_task = "+request.Task); auditErr != nil {
			return auditErr
		}
		if taskAdvisor == nil {
			return serviceUnavailable("task analysis is not configured", "set the LLM API key to enable it")
		}

		analysis, err := taskAdvisor.ParseTask(c.Request().Context(), request.Task)
		if err != nil {
			if errors.Is(err, advisor.ErrMalformedAnalysis) {
				return newAPIError(http.StatusBadGateway, "the language model returned an unusable reply", "try rephrasing the task description")
			}
			return internalServerError(err)
		}
		return c.JSON(http.StatusOK, analysis)
	}
}

func SearchDatasetsHandler(hub HubSearcher, kaggleClient KaggleSearcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		query := strings.TrimSpace(c.QueryParam(queryParamName))
		if query == "" {
			return badRequest("query parameter is required")
		}
		limit := defaultSearchLimit
		if rawLimit := c.QueryParam(limitParamName); rawLimit != "" {
			parsed, parseErr := strconv.Atoi(rawLimit)
			if parseErr != nil || parsed <= 0 {
				return badRequest("limit must be a positive integer")
			}
			limit = parsed
		}

		ctx := c.Request().Context()
		switch c.QueryParam(sourceParamName) {
		case searchSourceHuggingFace, "":
			if hub == nil {
				return serviceUnavailable("hugging face search is not configured", "")
			}
			results, err := hub.SearchDatasets(ctx, query, "", limit)
			if err != nil {
				return internalServerError(err)
			}
			return c.JSON(http.StatusOK, map[string]any{"source": searchSourceHuggingFace, "results": results})
		case searchSourceKaggle:
			if kaggleClient == nil {
				return serviceUnavailable("kaggle search is not configured", "set kaggle credentials to enable it")
			}
			results, err := kaggleClient.SearchDatasets(ctx, query, "", limit)
			if err != nil {
				return internalServerError(err)
			}
			return c.JSON(http.StatusOK, map[string]any{"source": searchSourceKaggle, "results": results})
		default:
			return badRequest("source must be huggingface or kaggle")
		}
	}
}
