package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

// okExec — исполнитель, успешно завершающий каждый лист.
func okExec(_ context.Context, leaf *Node) Result {
	return Result{ID: leaf.ID, Success: true}
}

func leaves(ids ...string) []Node {
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, Node{ID: id, Type: TypePut, Path: id})
	}
	return nodes
}

func TestRun_SingleLeaf(t *testing.T) {
	root := &Node{ID: "a", Type: TypePut, Path: "a"}
	results := Run(context.Background(), root, okExec)
	if len(results) != 1 || !results[0].Success || results[0].ID != "a" {
		t.Fatalf("неожиданные результаты: %+v", results)
	}
}

func TestRun_SequentialShortCircuit(t *testing.T) {
	// [ok, fail, ok] — третий лист не должен исполняться.
	root := &Node{IsSequential: true, Values: leaves("1", "2", "3")}

	var executed []string
	var mu sync.Mutex
	exec := func(_ context.Context, leaf *Node) Result {
		mu.Lock()
		executed = append(executed, leaf.ID)
		mu.Unlock()
		if leaf.ID == "2" {
			return CaptureError(leaf.ID, apierrors.Validation("scope violation"))
		}
		return Result{ID: leaf.ID, Success: true}
	}

	results := Run(context.Background(), root, exec)

	if len(results) != 2 {
		t.Fatalf("ожидалось ровно 2 результата, получено %d: %+v", len(results), results)
	}
	if !results[0].Success || results[1].Success {
		t.Errorf("первый успешен, второй нет: %+v", results)
	}
	if len(executed) != 2 {
		t.Errorf("третий лист не должен был исполняться: %v", executed)
	}
}

func TestRun_ParallelAll(t *testing.T) {
	// 25 листьев — три окна по 10/10/5; все результаты собираются,
	// порядок соответствует порядку входа.
	ids := make([]string, 25)
	for i := range ids {
		ids[i] = fmt.Sprintf("leaf-%02d", i)
	}
	root := &Node{Values: leaves(ids...)}

	results := Run(context.Background(), root, okExec)
	if len(results) != 25 {
		t.Fatalf("ожидалось 25 результатов, получено %d", len(results))
	}
	for i, r := range results {
		if r.ID != ids[i] {
			t.Errorf("позиция %d: ожидался %s, получен %s", i, ids[i], r.ID)
		}
	}
}

func TestRun_ParallelWindowBound(t *testing.T) {
	// Одновременно исполняется не больше ParallelWindow листьев.
	root := &Node{Values: leaves(make([]string, 30)...)}
	for i := range root.Values {
		root.Values[i].ID = fmt.Sprintf("%d", i)
	}

	var inflight, peak atomic.Int32
	exec := func(_ context.Context, leaf *Node) Result {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		inflight.Add(-1)
		return Result{ID: leaf.ID, Success: true}
	}

	Run(context.Background(), root, exec)
	if peak.Load() > ParallelWindow {
		t.Errorf("пик параллелизма %d превышает окно %d", peak.Load(), ParallelWindow)
	}
}

func TestRun_ParallelCollectsFailures(t *testing.T) {
	// Параллельная группа не останавливается на ошибке.
	root := &Node{Values: leaves("1", "2", "3")}
	exec := func(_ context.Context, leaf *Node) Result {
		if leaf.ID == "2" {
			return CaptureError(leaf.ID, apierrors.DoesNotExist("missing"))
		}
		return Result{ID: leaf.ID, Success: true}
	}

	results := Run(context.Background(), root, exec)
	if len(results) != 3 {
		t.Fatalf("ожидалось 3 результата, получено %d", len(results))
	}
	if results[1].Success || results[1].Error == "" {
		t.Errorf("второй результат должен нести ошибку: %+v", results[1])
	}
}

func TestRun_NestedTree(t *testing.T) {
	// Последовательная группа из параллельной подгруппы и листа.
	root := &Node{
		IsSequential: true,
		Values: []Node{
			{Values: leaves("p1", "p2")},
			{ID: "s1", Type: TypePut, Path: "s1"},
		},
	}

	results := Run(context.Background(), root, okExec)
	if len(results) != 3 {
		t.Fatalf("ожидалось 3 результата, получено %d: %+v", len(results), results)
	}
	if results[2].ID != "s1" {
		t.Errorf("последний результат должен быть s1: %+v", results[2])
	}
}

func TestRun_SequentialStopsAfterFailedSubtree(t *testing.T) {
	root := &Node{
		IsSequential: true,
		Values: []Node{
			{Values: []Node{{ID: "bad", Type: TypePut, Path: "bad"}}},
			{ID: "after", Type: TypePut, Path: "after"},
		},
	}
	exec := func(_ context.Context, leaf *Node) Result {
		if leaf.ID == "bad" {
			return CaptureError(leaf.ID, apierrors.Validation("no"))
		}
		return Result{ID: leaf.ID, Success: true}
	}

	results := Run(context.Background(), root, exec)
	if len(results) != 1 || results[0].ID != "bad" {
		t.Fatalf("после провала подгруппы исполнение должно остановиться: %+v", results)
	}
}

func TestCaptureError_Truncation(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	r := CaptureError("id", apierrors.Server("%s", string(long)))
	if len(r.Error) != 999 {
		t.Errorf("сообщение должно усекаться до 999 символов, получено %d", len(r.Error))
	}
	if r.Success {
		t.Error("захваченная ошибка не может быть успехом")
	}
}

func TestNode_JSONShape(t *testing.T) {
	payload := `{
		"isSequential": true,
		"values": [
			{"id": "1", "type": "PUT", "path": "a.txt", "content": "hello", "contentType": "text/plain"},
			{"id": "2", "type": "DELETE", "path": "b.txt", "doIgnoreDoesNotExistError": true}
		]
	}`

	root := &Node{}
	if err := json.Unmarshal([]byte(payload), root); err != nil {
		t.Fatalf("ошибка разбора дерева: %v", err)
	}
	if root.IsLeaf() || !root.IsSequential || len(root.Values) != 2 {
		t.Fatalf("неожиданная структура: %+v", root)
	}
	if !root.Values[1].DoIgnoreDoesNotExistError {
		t.Error("флаг doIgnoreDoesNotExistError потерян")
	}
	var content string
	if err := json.Unmarshal(root.Values[0].Content, &content); err != nil || content != "hello" {
		t.Errorf("content строкового листа: %q, err=%v", content, err)
	}
}
