package bill

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/zombor/bill-reconciler/internal/reconcile"
)

// maxUploadSize bounds multipart uploads; multi-page scans run large
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError writes {"error": message}
func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// upload is a document received in a request
type upload struct {
	filename    string
	contentType string
	data        []byte
	url         string
}

// readUpload accepts either a multipart "file" field or a JSON body naming a URL
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, int, string) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req struct {
			Document string `json:"document"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, "Invalid request body"
		}
		if strings.TrimSpace(req.Document) == "" {
			return nil, http.StatusBadRequest, "A document URL is required"
		}
		return &upload{url: strings.TrimSpace(req.Document)}, 0, ""
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB."
		}
		return nil, http.StatusBadRequest, "Error parsing form"
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		return nil, http.StatusBadRequest, "No file was provided. Upload the bill in the \"file\" field."
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		return nil, http.StatusInternalServerError, "Error reading file. Please try again."
	}

	return &upload{
		filename:    header.Filename,
		contentType: detectContentType(header.Filename, header.Header.Get("Content-Type"), data),
		data:        data,
	}, 0, ""
}

// writeProcessError maps a processing failure onto a response
func writeProcessError(w http.ResponseWriter, err error) {
	var empty *reconcile.EmptyDocumentError
	switch {
	case errors.As(err, &empty):
		issues := empty.Issues
		if issues == nil {
			issues = []reconcile.ValidationIssue{}
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  empty.Error(),
			"issues": issues,
		})
	case errors.Is(err, ErrDocumentTooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		writeJSONError(w, http.StatusBadRequest, err.Error())
	}
}

// handleCreateBill processes an uploaded or linked bill and returns the reconciled result
func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	in, code, msg := readUpload(w, r)
	if in == nil {
		writeJSONError(w, code, msg)
		return
	}

	var (
		record *Record
		err    error
	)
	if in.url != "" {
		record, err = s.service.ProcessURL(r.Context(), in.url)
	} else {
		record, err = s.service.ProcessBill(r.Context(), in.filename, in.data, in.contentType)
	}
	if err != nil {
		slog.Error("Error processing bill", "filename", in.filename, "url", in.url, "error", err)
		writeProcessError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/bills/%s", record.ID))
	w.Header().Set("X-Bill-Id", record.ID)
	writeJSON(w, http.StatusCreated, record.Bill)
}

// handleExtractRaw returns the unvalidated per-page responses of a document
func (s *Server) handleExtractRaw(w http.ResponseWriter, r *http.Request) {
	in, code, msg := readUpload(w, r)
	if in == nil {
		writeJSONError(w, code, msg)
		return
	}
	if in.url != "" {
		doc, err := s.service.fetcher.Fetch(r.Context(), in.url)
		if err != nil {
			writeProcessError(w, err)
			return
		}
		in.filename, in.contentType, in.data = doc.Filename, doc.ContentType, doc.Data
	}

	pages, err := s.service.ExtractRaw(r.Context(), in.filename, in.data, in.contentType)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// handleListBills returns every stored bill, newest first
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListBills()
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetBill returns a single stored bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetBill(r.PathValue("id"))
	if err != nil {
		s.notFoundOrError(w, err, "Bill not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetBillFile returns the original document of a bill
func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetBillFile(r.PathValue("id"))
	if err != nil {
		s.notFoundOrError(w, err, "File not found")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportBill returns a bill as a spreadsheet
func (s *Server) handleExportBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := s.service.ExportBill(id, &buf); err != nil {
		s.notFoundOrError(w, err, "Bill not found")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bill-%s.xlsx"`, id))
	w.Write(buf.Bytes())
}

// handleGetBillPages returns the raw model responses a bill was built from
func (s *Server) handleGetBillPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.service.GetBillPages(r.PathValue("id"))
	if err != nil {
		s.notFoundOrError(w, err, "Pages not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// handleDeleteBill deletes a bill
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBill(r.PathValue("id")); err != nil {
		s.notFoundOrError(w, err, "Error deleting bill")
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) notFoundOrError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		corsError(w, message, http.StatusNotFound)
		return
	}
	slog.Error(message, "error", err)
	corsError(w, "Internal server error", http.StatusInternalServerError)
}
