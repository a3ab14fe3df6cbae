// Package tools defines the MCP tool names and request/response schemas
// exposed by the learning memory service.
package tools

const (
	// ToolSaveMemory is the name of the save_memory MCP tool
	ToolSaveMemory = "save_memory"

	// ToolRetrieveMemories is the name of the retrieve_memories MCP tool
	ToolRetrieveMemories = "retrieve_memories"

	// ToolCompareTexts is the name of the compare_texts MCP tool
	ToolCompareTexts = "compare_texts"

	// ToolClusterMemories is the name of the cluster_memories MCP tool
	ToolClusterMemories = "cluster_memories"

	// ToolLearningPath is the name of the learning_path MCP tool
	ToolLearningPath = "learning_path"

	// ToolDeleteMemory is the name of the delete_memory MCP tool
	ToolDeleteMemory = "delete_memory"

	// DefaultRetrieveLimit is the default number of results to return
	// when no limit is specified in a retrieve_memories request
	DefaultRetrieveLimit = 5
)

// SaveMemoryRequest defines the input schema for save_memory tool
type SaveMemoryRequest struct {
	// UserID identifies the memory's owner
	UserID int64 `json:"user_id"`

	// Content is the conversation fragment to remember
	Content string `json:"content"`

	// Type classifies the memory (defaults to "chat")
	Type string `json:"type,omitempty"`
}

// SaveMemoryResponse defines the output schema for save_memory tool
type SaveMemoryResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// ID is the unique identifier assigned to the saved memory
	ID string `json:"id"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// RetrieveMemoriesRequest defines the input schema for retrieve_memories tool
type RetrieveMemoriesRequest struct {
	// UserID identifies whose memories to search
	UserID int64 `json:"user_id"`

	// Query is the text to search for
	Query string `json:"query"`

	// Limit is the maximum number of results to return
	// If not specified, DefaultRetrieveLimit will be used
	Limit int `json:"limit,omitempty"`
}

// RetrievedMemory is one semantic search hit
type RetrievedMemory struct {
	// ID is the memory's identifier
	ID string `json:"id"`

	// Content is the stored text
	Content string `json:"content"`

	// Similarity is the cosine similarity to the query, in [0, 1]
	Similarity float64 `json:"similarity"`
}

// RetrieveMemoriesResponse defines the output schema for retrieve_memories tool
type RetrieveMemoriesResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Results contains the matching memories, most similar first
	Results []RetrievedMemory `json:"results"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// CompareTextsRequest defines the input schema for compare_texts tool
type CompareTextsRequest struct {
	// Text1 is the first text to compare
	Text1 string `json:"text1"`

	// Text2 is the second text to compare
	Text2 string `json:"text2"`
}

// CompareTextsResponse defines the output schema for compare_texts tool
type CompareTextsResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Similarity is the cosine similarity of the two texts, in [0, 1]
	Similarity float64 `json:"similarity"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// ClusterMemoriesRequest defines the input schema for cluster_memories tool
type ClusterMemoriesRequest struct {
	// UserID identifies whose memories to cluster
	UserID int64 `json:"user_id"`
}

// TopicCluster is one labeled group in a clustering result
type TopicCluster struct {
	// Topic is the human-readable label for the group
	Topic string `json:"topic"`

	// MemberIDs lists the memory ids in the group
	MemberIDs []string `json:"member_ids"`

	// PercentageOfBatch is the group's share of the clustered batch
	PercentageOfBatch float64 `json:"percentage_of_batch"`
}

// ClusterMemoriesResponse defines the output schema for cluster_memories tool
type ClusterMemoriesResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Clusters contains the labeled groups
	Clusters []TopicCluster `json:"clusters"`

	// Unclustered lists memory ids that fit no group
	Unclustered []string `json:"unclustered,omitempty"`

	// TimePartitioned is set when the groups are a time-based fallback
	// rather than similarity clusters
	TimePartitioned bool `json:"time_partitioned,omitempty"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// LearningPathRequest defines the input schema for learning_path tool
type LearningPathRequest struct {
	// UserID identifies whose learning trajectory to analyze
	UserID int64 `json:"user_id"`
}

// TopicProgress is one topic's share of a user's memories
type TopicProgress struct {
	// Topic is the subject area name
	Topic string `json:"topic"`

	// Percentage is how many of the user's memories touch the topic
	Percentage int `json:"percentage"`
}

// LearningPathResponse defines the output schema for learning_path tool
type LearningPathResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Topics lists the tracked subject areas
	Topics []string `json:"topics"`

	// Progress ranks topics by coverage, highest first
	Progress []TopicProgress `json:"progress"`

	// Suggestions are next-step study recommendations
	Suggestions []string `json:"suggestions"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// DeleteMemoryRequest defines the input schema for delete_memory tool
type DeleteMemoryRequest struct {
	// ID is the unique identifier of the memory to delete
	ID string `json:"id"`
}

// DeleteMemoryResponse defines the output schema for delete_memory tool
type DeleteMemoryResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}
