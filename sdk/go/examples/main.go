package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"taskboard/internal/api"
	"taskboard/internal/task"
	"taskboard/sdk/go/taskboard"
)

func main() {
	svc := task.NewService(task.NewMemoryStore(), nil)
	srv := httptest.NewServer(api.NewServer(":0", svc, api.Options{}).Handler())
	defer srv.Close()

	client, err := taskboard.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.CreateTask(ctx, taskboard.NewTask{Title: "Buy milk", DueDate: "2025-01-31"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("created task %d: %s\n", created.ID, created.Message)

	done := true
	if err := client.UpdateTask(ctx, created.ID, taskboard.TaskUpdate{Completed: &done}); err != nil {
		panic(err)
	}

	tasks, err := client.ListTasks(ctx)
	if err != nil {
		panic(err)
	}
	for _, t := range tasks {
		fmt.Printf("#%d %s completed=%v\n", t.ID, t.Title, t.Completed)
	}

	if err := client.DeleteTask(ctx, created.ID); err != nil {
		panic(err)
	}
	if _, err := client.GetTask(ctx, created.ID); err != nil {
		fmt.Printf("after delete: %v\n", err)
	}
}
