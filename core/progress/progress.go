package progress

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"gopkg.in/cheggaaa/pb.v1"
)

var statsLock sync.RWMutex
var barsMap = map[string]*pb.ProgressBar{}
var statsMap = map[string]int{}

var enabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

// SetEnabled overrides the tty auto-detection
func SetEnabled(v bool) {
	statsLock.Lock()
	defer statsLock.Unlock()
	enabled = v
}

func ShowProgress() bool {
	statsLock.RLock()
	defer statsLock.RUnlock()
	return enabled
}

func RegisterBar(category, key string, total int) {
	if ShowProgress() {
		statsKey := fmt.Sprintf("[%v][%v]:", category, key)
		statsLock.Lock()
		defer statsLock.Unlock()
		statsMap[statsKey] = 0
		bar := pb.New(total).Prefix(statsKey)
		barsMap[statsKey] = bar
	}
}

func IncreaseWithTotal(category, key string, count, total int) {

	if total <= 0 {
		return
	}

	statsKey := fmt.Sprintf("[%v][%v]:", category, key)
	statsLock.Lock()
	defer statsLock.Unlock()
	v, ok := statsMap[statsKey]
	var sumCount = count
	if ok {
		sumCount = count + v
	}

	statsMap[statsKey] = sumCount
	if enabled {
		bar, ok := barsMap[statsKey]
		if !ok {
			bar = pb.New(total).Prefix(statsKey)
			barsMap[statsKey] = bar
			if pool != nil {
				pool.Add(bar)
			}
		}
		if bar.Total != int64(total) {
			bar.SetTotal(total)
		}

		bar.Set(sumCount)
		bar.Update()
	}
}

var pool *pb.Pool
var started bool

func Start() {

	if ShowProgress() {

		statsLock.Lock()
		defer statsLock.Unlock()

		if !started {
			ar := []*pb.ProgressBar{}
			for _, v := range barsMap {
				ar = append(ar, v)
			}
			var err error
			pool, err = pb.StartPool(ar...)
			if err != nil {
				panic(err)
			}
			started = true
		}
	}
}

func Stop() {
	if ShowProgress() {

		statsLock.Lock()
		defer statsLock.Unlock()

		for k, v := range statsMap {
			x, ok := barsMap[k]
			if !ok {
				continue
			}
			if int(x.Total) == v && !x.IsFinished() {
				x.Finish()
			}
		}
		if pool != nil {
			pool.Stop()
		}
		barsMap = map[string]*pb.ProgressBar{}
		statsMap = map[string]int{}
		started = false
	}
}
