package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dannav/hhmmss"
	"github.com/mattn/go-isatty"
	"github.com/xhit/go-str2duration/v2"
)

const (
	LoglevelQuiet = iota
	LoglevelError
	LoglevelWarning
	LoglevelInfo
	LoglevelDebug
	LoglevelTrace
)

const (
	NetworkBoth = "tcp"
	NetworkIPv4 = "tcp4"
	NetworkIPv6 = "tcp6"
)

// Max file name length is around 255 bytes on most filesystems.
// Leave room for the extension of the final file.
const MaxFileNameLength = 243

var (
	loglevel              = LoglevelWarning
	networkType           = NetworkBoth // Set to force IPv4 or IPv6
	networkOverrideDialer = &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	client *http.Client
)

var fnameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"/", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

/*
Logging functions;
ansi sgr 0=reset, 1=bold, while 3x sets the foreground color:
0black 1red 2green 3yellow 4blue 5magenta 6cyan 7white
*/
func LogGeneral(format string, args ...interface{}) {
	if loglevel >= LoglevelError {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		log.Print(msg)
	}
}

func LogError(format string, args ...interface{}) {
	if loglevel >= LoglevelError {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		log.Printf("ERROR: \033[31m%s\033[0m\033[K", msg)
	}
}

func LogWarn(format string, args ...interface{}) {
	if loglevel >= LoglevelWarning {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		log.Printf("WARNING: \033[33m%s\033[0m\033[K", msg)
	}
}

func LogInfo(format string, args ...interface{}) {
	if loglevel >= LoglevelInfo {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		log.Printf("INFO: \033[32m%s\033[0m\033[K", msg)
	}
}

func LogDebug(format string, args ...interface{}) {
	if loglevel >= LoglevelDebug {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		log.Printf("DEBUG: \033[36m%s\033[0m\033[K", msg)
	}
}

func LogTrace(format string, args ...interface{}) {
	if loglevel >= LoglevelTrace {
		msg := format
		if len(args) > 0 {
			msg = fmt.Sprintf(format, args...)
		}
		log.Printf("TRACE: \033[35m%s\033[0m\033[K", msg)
	}
}

func DialContextOverride(ctx context.Context, network, addr string) (net.Conn, error) {
	return networkOverrideDialer.DialContext(ctx, networkType, addr)
}

/*
Build the shared client used by every transfer. http.Client is safe for
concurrent use, so all workers share it and its connection pool.
*/
func InitializeHttpClient(proxyUrl *url.URL, timeout time.Duration, jar *cookiejar.Jar, workers int) {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	tr.DialContext = DialContextOverride
	tr.ResponseHeaderTimeout = 10 * time.Second
	if workers > tr.MaxIdleConnsPerHost {
		tr.MaxIdleConnsPerHost = workers
	}
	if proxyUrl != nil {
		// Override ProxyFromEnvironment (default setting)
		tr.Proxy = http.ProxyURL(proxyUrl)
	}

	client = &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
	if jar != nil {
		client.Jar = jar
	}
}

// Replace characters that are illegal in file names with underscores
func SanitizeFilename(s string) string {
	return fnameReplacer.Replace(s)
}

/*
Parse a duration option. Accepts Go durations plus days and weeks ("1d2h"),
or a clock value ("00:01:30").
*/
func ParseDurationOption(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || s == "0" {
		return 0, nil
	}

	if strings.Contains(s, ":") {
		return hhmmss.Parse(s)
	}

	return str2duration.ParseDuration(s)
}

/*
This is pretty dumb but the only way to handle sigint in a custom way
Thankfully we don't call this often enough to really care
*/
func getInput(c chan<- string) {
	var input string
	scanner := bufio.NewScanner(os.Stdin)

	if scanner.Scan() {
		input = strings.TrimSpace(scanner.Text())
	}

	c <- input
}

func GetUserInput(prompt string) string {
	var input string
	inputChan := make(chan string)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	// Stop only this channel so other interrupt listeners keep working
	defer signal.Stop(sigChan)

	fmt.Fprint(os.Stderr, prompt)
	go getInput(inputChan)

	select {
	case input = <-inputChan:
	case <-sigChan:
		fmt.Fprintln(os.Stderr, "\nExiting...")
		Exit(2)
	}

	return input
}

// Anything that is not an explicit yes is a no
func ParseYesNo(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}

	return false
}

func GetYesNo(prompt string) bool {
	return ParseYesNo(GetUserInput(fmt.Sprintf("%s [y/N]: ", prompt)))
}

func StdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Interactive confirmation. Without a terminal to ask on, the answer is no.
func PromptYesNo(prompt string) bool {
	if !StdinIsTerminal() {
		LogWarn("%s No terminal to ask on, assuming no.", prompt)
		return false
	}

	return GetYesNo(prompt)
}

func TryDelete(fname string) {
	_, err := os.Stat(fname)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			LogWarn("Error deleting file: %s", err)
		}

		return
	}

	LogInfo("Deleting file %s", fname)
	err = os.Remove(fname)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		LogWarn("Error deleting file: %s", err)
	}
}

// Call os.Stat and check if err is os.ErrNotExist
// Unsure if the file is guaranteed to exist when err is not nil or os.ErrNotExist
func Exists(file string) bool {
	_, err := os.Stat(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false
		}
	}

	return true
}

// Truncate the given string to be no more than the given number of bytes.
// Returned string may be less than maxBytes depending on the size of characters
// in the given string.
func TruncateString(s string, maxBytes int) string {
	var b strings.Builder
	r := strings.NewReader(s)
	curLen := 0
	b.Grow(r.Len())

	for {
		char, size, err := r.ReadRune()
		if err != nil {
			break
		}

		curLen += size
		if curLen > maxBytes {
			break
		}

		b.WriteRune(char)
	}

	return b.String()
}
