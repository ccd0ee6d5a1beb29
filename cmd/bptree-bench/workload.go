package main

import (
	"fmt"
	"math/rand"

	"github.com/wingdb/bptree/internal/bench"
)

// WorkloadType names one of the mixed-operation profiles a suite runs.
type WorkloadType string

const (
	OLTP      WorkloadType = "OLTP (90/10)"
	OLAP      WorkloadType = "OLAP (10/90)"
	Reporting WorkloadType = "Reporting (Range)"
)

// executeWorkload runs a mixed distribution of ops against idx.
func executeWorkload(idx bench.Index, wType WorkloadType, ops int) {
	for i := 0; i < ops; i++ {
		choice := rand.Intn(100)
		key := []byte(fmt.Sprintf("key-%08d", rand.Intn(ops)))

		switch wType {
		case OLTP:
			if choice < 90 {
				_, _ = idx.Get(key)
			} else {
				_ = idx.Insert(key, []byte("x"))
			}
		case OLAP:
			if choice < 10 {
				_, _ = idx.Get(key)
			} else {
				_ = idx.Insert(key, []byte("x"))
			}
		case Reporting:
			end := []byte(fmt.Sprintf("key-%08d", rand.Intn(ops)+100))
			it, err := idx.Range(key, end)
			if err != nil || it == nil {
				continue
			}
			for it.Next() {
			}
			it.Close()
		}
	}
}
