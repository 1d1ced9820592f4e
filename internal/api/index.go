package api

import (
	"net/http"
	"os"
)

// handleIndex 返回入口页面，文件缺失时返回 404。
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	info, err := os.Stat(s.opts.IndexPath)
	if s.opts.IndexPath == "" || err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "入口页面 index.html 不存在"})
		return
	}
	http.ServeFile(w, r, s.opts.IndexPath)
}
