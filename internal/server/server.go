package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/localrivet/gomcp/server"

	"github.com/mindtrail/learningmemory/internal/cluster"
	"github.com/mindtrail/learningmemory/internal/errortypes"
	"github.com/mindtrail/learningmemory/internal/learningpath"
	"github.com/mindtrail/learningmemory/internal/memstore"
	"github.com/mindtrail/learningmemory/internal/tools"
)

// MemoryService is the slice of the service facade the tool server needs.
type MemoryService interface {
	SaveMemory(ctx context.Context, userID int64, content, memType string) (string, error)
	RetrieveSimilar(ctx context.Context, userID int64, query string, limit int) ([]memstore.ScoredMemory, error)
	CompareTexts(ctx context.Context, text1, text2 string) (float64, error)
	ClusterMemories(ctx context.Context, userID int64) (cluster.Result, error)
	AnalyzeLearningPath(ctx context.Context, userID int64) (learningpath.Analysis, error)
	DeleteMemory(ctx context.Context, id string) error
}

// MCPMemoryToolServer implements the MemoryToolServer interface for
// handling MCP tool calls against the memory pipeline.
type MCPMemoryToolServer struct {
	service   MemoryService
	mcpServer server.Server
}

// NewMemoryToolServer creates a new MCPMemoryToolServer instance.
func NewMemoryToolServer(service MemoryService) *MCPMemoryToolServer {
	return &MCPMemoryToolServer{service: service}
}

// Initialize initializes the server with dependencies and configurations.
func (s *MCPMemoryToolServer) Initialize() error {
	slog.Info("Initializing MCP Memory Tool Server")

	if s.service == nil {
		return errortypes.ConfigError(errors.New("missing service dependency"), "server initialization failed")
	}

	srv := server.NewServer("learningmemory")

	srv = srv.Tool(tools.ToolSaveMemory, "Save a conversation fragment to the memory store",
		s.handleSaveMemory)

	srv = srv.Tool(tools.ToolRetrieveMemories, "Retrieve memories semantically similar to a query",
		s.handleRetrieveMemories)

	srv = srv.Tool(tools.ToolCompareTexts, "Score the semantic similarity of two texts",
		s.handleCompareTexts)

	srv = srv.Tool(tools.ToolClusterMemories, "Group a user's memories into labeled topics",
		s.handleClusterMemories)

	srv = srv.Tool(tools.ToolLearningPath, "Analyze a user's learning trajectory",
		s.handleLearningPath)

	srv = srv.Tool(tools.ToolDeleteMemory, "Delete a specific memory by ID",
		s.handleDeleteMemory)

	s.mcpServer = srv
	slog.Info("MCP Memory Tool Server initialized successfully", "tool_count", 6)
	return nil
}

// Start starts the MCP server on the stdio transport.
func (s *MCPMemoryToolServer) Start() error {
	if s.mcpServer == nil {
		return errortypes.ConfigError(errors.New("server not initialized"), "cannot start server")
	}

	slog.Info("Starting MCP Memory Tool Server")
	stdioServer := s.mcpServer.AsStdio()
	return stdioServer.Run()
}

// Stop gracefully shuts down the MCP server.
func (s *MCPMemoryToolServer) Stop() error {
	slog.Info("Stopping MCP Memory Tool Server")
	// The server exits when stdin is closed
	return nil
}

// handleSaveMemory handles the save_memory MCP tool call.
func (s *MCPMemoryToolServer) handleSaveMemory(ctx *server.Context, req tools.SaveMemoryRequest) (tools.SaveMemoryResponse, error) {
	slog.Info("Processing save_memory request", "user_id", req.UserID, "content_length", len(req.Content))

	response := tools.SaveMemoryResponse{Status: "success"}

	id, err := s.service.SaveMemory(context.Background(), req.UserID, req.Content, req.Type)
	if err != nil {
		err = errortypes.APIError(err, "failed to save memory").
			WithField("user_id", req.UserID).
			WithField("content_length", len(req.Content))
		errortypes.LogError(nil, err)

		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	response.ID = id
	slog.Info("Successfully saved memory", "id", id)
	return response, nil
}

// handleRetrieveMemories handles the retrieve_memories MCP tool call.
func (s *MCPMemoryToolServer) handleRetrieveMemories(ctx *server.Context, req tools.RetrieveMemoriesRequest) (tools.RetrieveMemoriesResponse, error) {
	slog.Info("Processing retrieve_memories request", "user_id", req.UserID, "query", req.Query, "limit", req.Limit)

	response := tools.RetrieveMemoriesResponse{Status: "success"}

	limit := req.Limit
	if limit <= 0 {
		limit = tools.DefaultRetrieveLimit
	}

	results, err := s.service.RetrieveSimilar(context.Background(), req.UserID, req.Query, limit)
	if err != nil {
		err = errortypes.APIError(err, "failed to retrieve memories").
			WithField("user_id", req.UserID).
			WithField("limit", limit)
		errortypes.LogError(nil, err)

		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	response.Results = make([]tools.RetrievedMemory, len(results))
	for i, r := range results {
		response.Results[i] = tools.RetrievedMemory{
			ID:         r.Memory.ID,
			Content:    r.Memory.Content,
			Similarity: r.Similarity,
		}
	}
	slog.Info("Successfully retrieved memories", "count", len(results))
	return response, nil
}

// handleCompareTexts handles the compare_texts MCP tool call.
func (s *MCPMemoryToolServer) handleCompareTexts(ctx *server.Context, req tools.CompareTextsRequest) (tools.CompareTextsResponse, error) {
	slog.Info("Processing compare_texts request",
		"text1_length", len(req.Text1), "text2_length", len(req.Text2))

	response := tools.CompareTextsResponse{Status: "success"}

	similarity, err := s.service.CompareTexts(context.Background(), req.Text1, req.Text2)
	if err != nil {
		err = errortypes.APIError(err, "failed to compare texts")
		errortypes.LogError(nil, err)

		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	response.Similarity = similarity
	return response, nil
}

// handleClusterMemories handles the cluster_memories MCP tool call.
func (s *MCPMemoryToolServer) handleClusterMemories(ctx *server.Context, req tools.ClusterMemoriesRequest) (tools.ClusterMemoriesResponse, error) {
	slog.Info("Processing cluster_memories request", "user_id", req.UserID)

	response := tools.ClusterMemoriesResponse{Status: "success"}

	result, err := s.service.ClusterMemories(context.Background(), req.UserID)
	if err != nil {
		err = errortypes.APIError(err, "failed to cluster memories").
			WithField("user_id", req.UserID)
		errortypes.LogError(nil, err)

		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	response.Clusters = make([]tools.TopicCluster, len(result.Clusters))
	for i, c := range result.Clusters {
		response.Clusters[i] = tools.TopicCluster{
			Topic:             c.Topic,
			MemberIDs:         c.MemberIDs,
			PercentageOfBatch: c.PercentageOfBatch,
		}
	}
	response.Unclustered = result.Unclustered
	response.TimePartitioned = result.TimePartitioned

	slog.Info("Successfully clustered memories",
		"clusters", len(result.Clusters), "unclustered", len(result.Unclustered))
	return response, nil
}

// handleLearningPath handles the learning_path MCP tool call.
func (s *MCPMemoryToolServer) handleLearningPath(ctx *server.Context, req tools.LearningPathRequest) (tools.LearningPathResponse, error) {
	slog.Info("Processing learning_path request", "user_id", req.UserID)

	response := tools.LearningPathResponse{Status: "success"}

	analysis, err := s.service.AnalyzeLearningPath(context.Background(), req.UserID)
	if err != nil {
		err = errortypes.APIError(err, "failed to analyze learning path").
			WithField("user_id", req.UserID)
		errortypes.LogError(nil, err)

		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	response.Topics = analysis.Topics
	response.Progress = make([]tools.TopicProgress, len(analysis.Progress))
	for i, p := range analysis.Progress {
		response.Progress[i] = tools.TopicProgress{Topic: p.Topic, Percentage: p.Percentage}
	}
	response.Suggestions = analysis.Suggestions
	return response, nil
}

// handleDeleteMemory handles the delete_memory MCP tool call.
func (s *MCPMemoryToolServer) handleDeleteMemory(ctx *server.Context, req tools.DeleteMemoryRequest) (tools.DeleteMemoryResponse, error) {
	slog.Info("Processing delete_memory request", "id", req.ID)

	response := tools.DeleteMemoryResponse{Status: "success"}

	if req.ID == "" {
		err := errortypes.ValidationError(errors.New("id cannot be empty for delete_memory"), "invalid delete_memory request")
		errortypes.LogError(nil, err)
		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	if err := s.service.DeleteMemory(context.Background(), req.ID); err != nil {
		err = errortypes.DatabaseError(err, "failed to delete memory").
			WithField("memory_id", req.ID)
		errortypes.LogError(nil, err)

		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	slog.Info("Successfully deleted memory", "id", req.ID)
	return response, nil
}
