package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/gsc/pkg/golden"
	"github.com/xplshn/gsc/pkg/util"
)

type CaseResult struct {
	Name        string            `json:"name"`
	Status      string            `json:"status"` // PASS, FAIL
	Failures    []string          `json:"failures,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Interp      *golden.Execution `json:"interp,omitempty"`
	Sim         *golden.Execution `json:"sim,omitempty"`
	Duration    time.Duration     `json:"duration"`
	Unstable    bool              `json:"unstable_output,omitempty"`
}

type FileTestResult struct {
	File    string       `json:"file"`
	Hash    string       `json:"hash"`
	Status  string       `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string       `json:"message,omitempty"`
	Diff    string       `json:"diff,omitempty"`
	Cases   []CaseResult `json:"cases,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	testFiles   = flag.String("test-files", "pkg/golden/testdata/*.md", "Glob pattern(s) for Markdown case files (space-separated).")
	skipFiles   = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON  = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	jobs        = flag.Int("j", 4, "Number of parallel test jobs.")
	maxSteps    = flag.Int("max-steps", 50_000_000, "Instruction budget of each execution.")
	verbose     = flag.Bool("v", false, "Enable verbose logging.")
	useCache    = flag.Bool("cached", false, "Skip files whose content is unchanged since a passing run.")
	showWarning = flag.Bool("warnings", false, "Show compiler warnings while running cases.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)
	setupInterruptHandler()

	if !*showWarning {
		util.WarnOutput = io.Discard
	}
	golden.MaxSteps = *maxSteps

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	previousResults := make(TestSuiteResults)
	if prevData, err := os.ReadFile(*outputJSON); err == nil {
		if json.Unmarshal(prevData, &previousResults) != nil {
			log.Printf("%s[WARN]%s Could not parse previous results file %s. Cache will not be used.\n", cYellow, cNone, *outputJSON)
			previousResults = make(TestSuiteResults)
		}
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, t.hash, previousResults[t.file])
			}
		}()
	}

	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Hash: fileHash, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		if prev, ok := previousResults[file]; *useCache && ok && prev.Hash == fileHash && prev.Status == "PASS" {
			cached := *prev
			cached.Message = "Unchanged since the last passing run (cached)"
			resultsChan <- &cached
			continue
		}
		tasks <- task{file, fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)
	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func setupInterruptHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		os.Exit(1)
	}()
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func testFile(file, fileHash string, prev *FileTestResult) *FileTestResult {
	content, err := os.ReadFile(file)
	if err != nil {
		return &FileTestResult{File: file, Hash: fileHash, Status: "ERROR", Message: err.Error()}
	}
	cases, err := golden.ExtractTestCases(string(content))
	if err != nil {
		return &FileTestResult{File: file, Hash: fileHash, Status: "ERROR", Message: err.Error()}
	}

	prevCases := make(map[string]CaseResult)
	if prev != nil && prev.Hash == fileHash {
		for _, c := range prev.Cases {
			prevCases[c.Name] = c
		}
	}

	res := &FileTestResult{File: file, Hash: fileHash, Status: "PASS"}
	var diffs []string
	failed := 0
	for i := range cases {
		tc := &cases[i]
		start := time.Now()
		out := golden.Run(tc)
		cr := CaseResult{Name: tc.Name, Status: "PASS", Duration: time.Since(start)}
		if out.CompileErr == nil {
			cr.Fingerprint = fmt.Sprintf("%016x", out.Fingerprint)
			if out.Interp != (golden.Execution{}) || out.Sim != (golden.Execution{}) {
				interp, sim := out.Interp, out.Sim
				cr.Interp, cr.Sim = &interp, &sim
			}
		}
		if fails := golden.Check(tc, out); len(fails) > 0 {
			cr.Status, cr.Failures = "FAIL", fails
			failed++
		}

		// Same input, same compiler flags: the output must not move between runs.
		if p, ok := prevCases[tc.Name]; ok && p.Fingerprint != "" && p.Fingerprint != cr.Fingerprint {
			cr.Unstable = true
			diffs = append(diffs, fmt.Sprintf("%s: fingerprint changed (-previous +current):\n%s", tc.Name, cmp.Diff(p.Fingerprint, cr.Fingerprint)))
			if p.Sim != nil && cr.Sim != nil {
				if d := cmp.Diff(*p.Sim, *cr.Sim); d != "" {
					diffs = append(diffs, fmt.Sprintf("%s: execution changed (-previous +current):\n%s", tc.Name, d))
				}
			}
		}
		res.Cases = append(res.Cases, cr)
	}

	if failed > 0 {
		res.Status = "FAIL"
		res.Message = fmt.Sprintf("%d of %d cases failed", failed, len(cases))
	} else {
		res.Message = fmt.Sprintf("%d cases passed", len(cases))
	}
	res.Diff = strings.Join(diffs, "\n")
	return res
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var total time.Duration

	var maxNameLen int
	for _, result := range results {
		for _, c := range result.Cases {
			if len(c.Name) > maxNameLen {
				maxNameLen = len(c.Name)
			}
		}
	}

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		for _, c := range result.Cases {
			total += c.Duration
			switch {
			case c.Status == "FAIL":
				fmt.Printf("    [%sFAIL%s] %s\n", cRed, cNone, c.Name)
				for _, f := range c.Failures {
					fmt.Println(indent(f, "      "))
				}
			case *verbose:
				fmt.Printf("    [%sPASS%s] %-*s %s\n", cGreen, cNone, maxNameLen, c.Name, formatDuration(c.Duration))
			}
			if c.Unstable {
				fmt.Printf("    [%sUNSTABLE%s] %s: output differs from the previous run\n", cYellow, cNone, c.Name)
			}
		}
		if result.Diff != "" {
			fmt.Println(formatDiff(result.Diff))
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sSummary:%s %s%d passed%s, %s%d failed%s, %s%d skipped%s, %s%d errored%s, total time %s\n",
		cBold, cNone,
		cGreen, passed, cNone,
		cRed, failed, cNone,
		cYellow, skipped, cNone,
		cRed, errored, cNone,
		formatDuration(total))
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		lineWithIndent := "    " + line
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString(lineWithIndent)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}
	if err := os.WriteFile(*outputJSON, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", *outputJSON)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
