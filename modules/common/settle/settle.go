package settle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result - 작업 1개의 결과 (성공 값 또는 에러)
type Result[T any] struct {
	Value T
	Err   error
}

// OK - 성공 여부
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Task - settle 대상 작업
type Task[T any] func(ctx context.Context) (T, error)

// All - 모든 작업을 동시에 실행하고 작업마다 결과 1개를 입력 순서대로 반환
// 한 작업의 실패나 panic 이 다른 작업을 취소하지 않음
func All[T any](ctx context.Context, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = run(ctx, task)
			return nil // errgroup 조기 종료 방지, 결과는 직접 수집
		})
	}
	_ = g.Wait()

	return results
}

// Chunked - size 개씩 나눠 All 실행. 이전 청크가 모두 끝나야 다음 청크 시작
// onChunk 가 nil 이 아니면 청크 완료마다 호출
func Chunked[T any](ctx context.Context, tasks []Task[T], size int, onChunk func(start int, results []Result[T])) []Result[T] {
	if size < 1 {
		size = 1
	}

	results := make([]Result[T], 0, len(tasks))
	for start := 0; start < len(tasks); start += size {
		end := min(start+size, len(tasks))
		chunk := All(ctx, tasks[start:end])
		if onChunk != nil {
			onChunk(start, chunk)
		}
		results = append(results, chunk...)
	}
	return results
}

func run[T any](ctx context.Context, task Task[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()

	value, err := task(ctx)
	return Result[T]{Value: value, Err: err}
}
