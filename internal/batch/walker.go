// Пакет batch — движок perform-files: дерево PUT/DELETE операций
// с последовательной/параллельной дисциплиной на каждом узле.
// Walker обходит дерево; семантику листьев задаёт вызывающая сторона.
package batch

import (
	"context"
	"encoding/json"
	"sync"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

// ParallelWindow — максимальное количество одновременно исполняемых
// детей параллельной группы.
const ParallelWindow = 10

// maxErrorLen — предел длины сообщения об ошибке в результате листа.
const maxErrorLen = 999

// Node — узел дерева операций. Узел с непустым Values — интерьерный,
// иначе — лист.
type Node struct {
	// Values — дети интерьерного узла
	Values []Node `json:"values,omitempty"`
	// IsSequential — дети исполняются по порядку с short-circuit
	IsSequential bool `json:"isSequential,omitempty"`

	// --- Поля листа ---
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Path string `json:"path,omitempty"`
	// Content — строка или JSON-объект (только для PUT)
	Content     json.RawMessage `json:"content,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
	// DoIgnoreDoesNotExistError — глотать doesNotExist при DELETE
	DoIgnoreDoesNotExistError bool `json:"doIgnoreDoesNotExistError,omitempty"`
}

// Типы листовых операций.
const (
	TypePut    = "PUT"
	TypeDelete = "DELETE"
)

// IsLeaf сообщает, является ли узел листом.
func (n *Node) IsLeaf() bool {
	return len(n.Values) == 0
}

// Result — результат исполнения одного листа.
type Result struct {
	ID        string `json:"id,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	PublicURL string `json:"publicURL,omitempty"`
	ETag      string `json:"etag,omitempty"`
}

// LeafFunc исполняет один лист и возвращает его результат.
// Ошибки листа не возвращаются — они захватываются в Result.
type LeafFunc func(ctx context.Context, leaf *Node) Result

// CaptureError преобразует ошибку листа в захваченный результат
// с усечением сообщения.
func CaptureError(id string, err error) Result {
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return Result{ID: id, Success: false, Error: msg}
}

// Run обходит дерево и возвращает результаты листьев.
//
// Последовательная группа исполняет детей по порядку и останавливается,
// как только любой результат листа имеет success=false. Параллельная
// группа исполняет детей окнами до ParallelWindow; порядок результатов
// сохраняется внутри окна, окна конкатенируются по порядку.
func Run(ctx context.Context, root *Node, exec LeafFunc) []Result {
	return walk(ctx, root, exec)
}

func walk(ctx context.Context, node *Node, exec LeafFunc) []Result {
	if node.IsLeaf() {
		if err := ctx.Err(); err != nil {
			return []Result{CaptureError(node.ID, apierrors.Server("request cancelled"))}
		}
		return []Result{exec(ctx, node)}
	}

	if node.IsSequential {
		return walkSequential(ctx, node, exec)
	}
	return walkParallel(ctx, node, exec)
}

func walkSequential(ctx context.Context, node *Node, exec LeafFunc) []Result {
	var results []Result
	for i := range node.Values {
		childResults := walk(ctx, &node.Values[i], exec)
		results = append(results, childResults...)
		if anyFailed(childResults) {
			break
		}
	}
	return results
}

func walkParallel(ctx context.Context, node *Node, exec LeafFunc) []Result {
	var results []Result
	for start := 0; start < len(node.Values); start += ParallelWindow {
		end := min(start+ParallelWindow, len(node.Values))
		window := node.Values[start:end]

		windowResults := make([][]Result, len(window))
		var wg sync.WaitGroup
		for i := range window {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				windowResults[i] = walk(ctx, &window[i], exec)
			}(i)
		}
		wg.Wait()

		for _, r := range windowResults {
			results = append(results, r...)
		}
	}
	return results
}

func anyFailed(results []Result) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}
