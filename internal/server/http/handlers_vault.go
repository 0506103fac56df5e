package httpserver

import (
	"net/http"

	"github.com/and161185/passvault/internal/convert"
)

type searchReq struct {
	URL string `json:"url"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	es, err := s.vault.List(r.Context(), mustUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passwords": convert.ToEntries(es)})
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var in convert.EntryRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := s.vault.Create(r.Context(), mustUser(r), in.NewEntry())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Password saved successfully",
		"password": convert.ToEntry(*e),
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	e, err := s.vault.Get(r.Context(), mustUser(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"password": convert.ToEntry(*e)})
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var in convert.EntryRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	patch, err := in.Patch()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.vault.Update(r.Context(), mustUser(r), id, patch); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if err := s.vault.Delete(r.Context(), mustUser(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password deleted successfully"})
}

func (s *Server) handleSearchEntries(w http.ResponseWriter, r *http.Request) {
	var in searchReq
	if !decodeJSON(w, r, &in) {
		return
	}
	es, err := s.vault.Search(r.Context(), mustUser(r), in.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passwords": convert.ToEntries(es)})
}

func (s *Server) handleCountEntries(w http.ResponseWriter, r *http.Request) {
	n, err := s.vault.Count(r.Context(), mustUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}
