package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/docq-ai/docq-go/internal/ingestion"
	"github.com/docq-ai/docq-go/internal/store"
)

// maxUploadBytes limits the size of a single document upload.
const maxUploadBytes = 10 << 20 // 10 MiB

// allowedExtensions lists the file types accepted for ingestion.
var allowedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// handleUpload handles POST /api/documents. It accepts a multipart form with
// a "file" field, validates it is UTF-8 text with an allowed extension, and
// runs it through the ingestion pipeline under the authenticated owner.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	log := ownerLog(r, ownerID)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	filename := hdr.Filename
	if filename == "" {
		filename = "unknown.txt"
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		writeError(w, http.StatusBadRequest, "File type not supported. Allowed: .txt, .md")
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		log.Error("upload: read file", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}
	if !utf8.Valid(raw) {
		writeError(w, http.StatusBadRequest, "Could not decode file. Please ensure it's a valid UTF-8 text file.")
		return
	}

	content := string(raw)
	if strings.TrimSpace(content) == "" {
		writeError(w, http.StatusBadRequest, "File is empty")
		return
	}

	receipt, err := s.deps.Ingester.Ingest(r.Context(), ownerID, filename, content)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyDocument) {
			writeError(w, http.StatusBadRequest, "File is empty")
			return
		}
		log.Error("upload: ingest", slog.String("filename", filename), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Error processing document: "+err.Error())
		return
	}

	s.metrics.documentsIngestedTotal.Inc()
	s.metrics.chunksIngestedTotal.Add(float64(receipt.ChunksProcessed))

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message:         "Document uploaded and processed successfully",
		DocumentID:      receipt.DocumentID,
		Filename:        receipt.Filename,
		ChunksProcessed: receipt.ChunksProcessed,
	})
}

// handleListDocuments handles GET /api/documents. It returns the
// authenticated owner's documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())

	docs, err := s.deps.Store.DocumentsByOwner(r.Context(), ownerID)
	if err != nil {
		ownerLog(r, ownerID).Error("list documents", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Error fetching documents")
		return
	}

	resp := listDocumentsResponse{Documents: make([]documentItem, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentItem{
			ID:         d.ID,
			Filename:   d.Filename,
			SizeBytes:  d.SizeBytes,
			ChunkCount: d.ChunkCount,
			CreatedAt:  d.CreatedAt,
		})
	}
	resp.Total = len(resp.Documents)

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteDocument handles DELETE /api/documents/{id}. Only the owner can
// delete a document. Deletion removes the metadata and chunk rows; the
// document's vectors remain in the index as unreachable slots.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	log := ownerLog(r, ownerID)
	docID := r.PathValue("id")

	doc, err := s.deps.Store.DocumentByID(r.Context(), ownerID, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found or you don't have permission to delete it")
			return
		}
		log.Error("delete document: lookup", slog.String("document_id", docID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Error deleting document")
		return
	}

	if err := s.deps.Store.DeleteDocument(r.Context(), ownerID, docID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found or you don't have permission to delete it")
			return
		}
		log.Error("delete document", slog.String("document_id", docID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Error deleting document")
		return
	}

	log.Info("document deleted",
		slog.String("document_id", docID),
		slog.Int("chunks_deleted", doc.ChunkCount),
	)
	writeJSON(w, http.StatusOK, deleteDocumentResponse{
		Message:       "Document deleted successfully",
		DocumentID:    docID,
		ChunksDeleted: doc.ChunkCount,
	})
}
