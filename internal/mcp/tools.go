package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/search"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Tool names.
const (
	ToolQuery           = "rag_query"
	ToolListDocuments   = "rag_list_documents"
	ToolToggleDocuments = "rag_toggle_documents"
	ToolSearchDocuments = "rag_search_documents"
	ToolIngestFile      = "rag_ingest_file"
)

type queryInput struct {
	UserID   string `json:"user_id" jsonschema:"required,Acting user identifier"`
	Question string `json:"question" jsonschema:"required,Question to answer from the user's enabled documents"`
}

type queryOutput struct {
	Answer string `json:"answer" jsonschema:"Generated answer or a fixed no-content message"`
}

type listDocumentsInput struct {
	UserID string `json:"user_id" jsonschema:"required,Acting user identifier"`
}

type documentOutput struct {
	ID           string `json:"id" jsonschema:"Document ID"`
	Name         string `json:"name" jsonschema:"Original file name"`
	CreatedAt    string `json:"created_at" jsonschema:"Upload time (RFC 3339)"`
	EnabledForQA bool   `json:"enabled_for_qa" jsonschema:"Whether the document is used to answer questions"`
}

type listDocumentsOutput struct {
	Documents []documentOutput `json:"documents" jsonschema:"Documents, newest first"`
	Count     int              `json:"count" jsonschema:"Number of documents"`
}

type toggleDocumentsInput struct {
	UserID      string   `json:"user_id" jsonschema:"required,Acting user identifier"`
	DocumentIDs []string `json:"document_ids" jsonschema:"required,Documents whose QA enablement is flipped"`
}

type toggleDocumentsOutput struct {
	Toggled int `json:"toggled" jsonschema:"Number of documents flipped"`
}

type searchDocumentsInput struct {
	UserID string `json:"user_id" jsonschema:"required,Acting user identifier"`
	Query  string `json:"query" jsonschema:"required,Keywords to look for"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum hits (default: 10)"`
}

type searchDocumentsOutput struct {
	Hits  []search.Hit `json:"hits" jsonschema:"Matching chunks, best first"`
	Count int          `json:"count" jsonschema:"Number of hits"`
}

type ingestFileInput struct {
	UserID string `json:"user_id" jsonschema:"required,Acting user identifier"`
	Path   string `json:"path" jsonschema:"required,Local path of the file to upload"`
}

type ingestFileOutput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the stored document"`
	Chunks     int    `json:"chunks" jsonschema:"Number of chunks stored"`
}

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        ToolQuery,
		Description: "Answer a question from the user's QA-enabled documents",
	}, s.query)
	addTool(s, &mcp.Tool{
		Name:        ToolListDocuments,
		Description: "List the user's uploaded documents and whether each is enabled for QA",
	}, s.listDocuments)
	addTool(s, &mcp.Tool{
		Name:        ToolToggleDocuments,
		Description: "Flip QA enablement on the given documents; all change or none do",
	}, s.toggleDocuments)
	addTool(s, &mcp.Tool{
		Name:        ToolSearchDocuments,
		Description: "Keyword search over the user's documents",
	}, s.searchDocuments)
	addTool(s, &mcp.Tool{
		Name:        ToolIngestFile,
		Description: "Upload a local txt, md, html, docx or xlsx file for the user",
	}, s.ingestFile)
}

// addTool registers h with metrics, user-scoped logging and error
// classification around it.
func addTool[In, Out any](s *Server, tool *mcp.Tool, h func(context.Context, In) (string, Out, error)) {
	s.tools = append(s.tools, tool.Name)
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.begin(ctx, tool.Name)
		text, out, err := h(ctx, args)
		done(err)
		if err != nil {
			var zero Out
			return nil, zero, s.toolError(ctx, tool.Name, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})
}

// toolError reports classified errors by kind and message and hides the
// cause of anything else.
func (s *Server) toolError(ctx context.Context, tool string, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindStorage {
		s.logger.Error(ctx, "tool failed", zap.String("tool", tool), zap.Error(err))
	} else {
		s.logger.Debug(ctx, "tool rejected", zap.String("tool", tool), zap.Error(err))
	}
	return fmt.Errorf("%s: %s", kind, apperr.MessageOf(err))
}

func requireUser(op, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperr.Validation(op, "user_id is required")
	}
	return userID, nil
}

func (s *Server) query(ctx context.Context, args queryInput) (string, queryOutput, error) {
	userID, err := requireUser("mcp.query", args.UserID)
	if err != nil {
		return "", queryOutput{}, err
	}
	ctx = logging.WithUserID(ctx, userID)
	answer, err := s.services.QA().Answer(ctx, args.Question, userID)
	if err != nil {
		return "", queryOutput{}, err
	}
	return answer, queryOutput{Answer: answer}, nil
}

func (s *Server) listDocuments(ctx context.Context, args listDocumentsInput) (string, listDocumentsOutput, error) {
	userID, err := requireUser("mcp.listDocuments", args.UserID)
	if err != nil {
		return "", listDocumentsOutput{}, err
	}
	docs, err := s.services.Documents().List(logging.WithUserID(ctx, userID), userID)
	if err != nil {
		return "", listDocumentsOutput{}, err
	}

	out := listDocumentsOutput{Documents: make([]documentOutput, len(docs)), Count: len(docs)}
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s)", len(docs))
	for i, d := range docs {
		out.Documents[i] = documentOutput{
			ID:           d.ID,
			Name:         d.Name,
			CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
			EnabledForQA: d.EnabledForQA,
		}
		state := "disabled"
		if d.EnabledForQA {
			state = "enabled"
		}
		fmt.Fprintf(&b, "\n%s  %s  (%s)", d.ID, d.Name, state)
	}
	return b.String(), out, nil
}

func (s *Server) toggleDocuments(ctx context.Context, args toggleDocumentsInput) (string, toggleDocumentsOutput, error) {
	userID, err := requireUser("mcp.toggleDocuments", args.UserID)
	if err != nil {
		return "", toggleDocumentsOutput{}, err
	}
	if err := s.services.Documents().Toggle(logging.WithUserID(ctx, userID), userID, args.DocumentIDs); err != nil {
		return "", toggleDocumentsOutput{}, err
	}
	n := len(args.DocumentIDs)
	return fmt.Sprintf("Toggled %d document(s)", n), toggleDocumentsOutput{Toggled: n}, nil
}

func (s *Server) searchDocuments(ctx context.Context, args searchDocumentsInput) (string, searchDocumentsOutput, error) {
	userID, err := requireUser("mcp.searchDocuments", args.UserID)
	if err != nil {
		return "", searchDocumentsOutput{}, err
	}
	hits, err := s.services.Documents().Search(logging.WithUserID(ctx, userID), userID, args.Query, args.Limit)
	if err != nil {
		return "", searchDocumentsOutput{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d hit(s)", len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "\n[%s #%d] %s", h.DocumentID, h.Ordinal, h.Content)
	}
	return b.String(), searchDocumentsOutput{Hits: hits, Count: len(hits)}, nil
}

func (s *Server) ingestFile(ctx context.Context, args ingestFileInput) (string, ingestFileOutput, error) {
	const op = "mcp.ingestFile"
	userID, err := requireUser(op, args.UserID)
	if err != nil {
		return "", ingestFileOutput{}, err
	}
	if strings.TrimSpace(args.Path) == "" {
		return "", ingestFileOutput{}, apperr.Validation(op, "path is required")
	}

	path := filepath.Clean(args.Path)
	info, err := os.Stat(path)
	if err != nil {
		return "", ingestFileOutput{}, apperr.File(op, "Could not open file", err)
	}
	if !info.Mode().IsRegular() {
		return "", ingestFileOutput{}, apperr.File(op, "Path is not a regular file", nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", ingestFileOutput{}, apperr.File(op, "Could not open file", err)
	}
	defer f.Close()

	res, err := s.services.Ingest().Ingest(logging.WithUserID(ctx, userID), ingest.Request{
		UserID:   userID,
		Filename: filepath.Base(path),
		Body:     f,
	})
	if err != nil {
		return "", ingestFileOutput{}, err
	}
	out := ingestFileOutput{DocumentID: res.DocumentID, Chunks: res.Chunks}
	return fmt.Sprintf("Stored %s as %s (%d chunks)", filepath.Base(path), res.DocumentID, res.Chunks), out, nil
}
