package taskboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateAndListTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body["title"] != "Buy milk" {
				t.Errorf("unexpected body: %v", body)
			}
			if _, ok := body["due_date"]; ok {
				t.Errorf("empty due_date should be omitted: %v", body)
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Created{ID: 1, Message: "ok"})
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":1,"title":"Buy milk","description":"","due_date":null,"is_completed":false}]`))
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	created, err := client.CreateTask(context.Background(), NewTask{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 1 {
		t.Fatalf("unexpected id: %d", created.ID)
	}
	tasks, err := client.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].DueDate != nil || tasks[0].Completed {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestUpdateSendsOnlySetFields(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tasks/7" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	done := true
	if err := client.UpdateTask(context.Background(), 7, TaskUpdate{Completed: &done, ClearDueDate: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(got) != 2 || string(got["is_completed"]) != "true" || string(got["due_date"]) != "null" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"task not found"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	err := client.DeleteTask(context.Background(), 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if !apiErr.NotFound() || apiErr.Message != "task not found" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if _, err := client.GetTask(context.Background(), 3); !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError from GetTask, got %v", err)
	}
}
