package main

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	CookieDomain = iota
	CookieHostOnly
	CookiePath
	CookieSecure
	CookieExpiration
	CookieName
	CookieValue
	CookiePieces
)

/*
Load a cookies.txt file into a new jar.
Lines that are not 7 tab separated fields are ignored, as are comments other
than the #HttpOnly_ prefix.
*/
func ParseNetscapeCookiesFile(fname string) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	cookieMap := make(map[string][]*http.Cookie)
	count := 0

	for scanner.Scan() {
		cookie := parseCookieLine(scanner.Text())
		if cookie == nil {
			continue
		}

		// Leading dot means subdomains too; the jar only wants the host
		host := strings.TrimPrefix(cookie.Domain, ".")
		cookieMap[host] = append(cookieMap[host], cookie)
		count += 1
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", fname, err)
	}

	for host, cookies := range cookieMap {
		u, err := url.Parse(fmt.Sprintf("https://%s", host))
		if err != nil {
			LogDebug("Skipping cookies for %s: %s", host, err)
			continue
		}

		jar.SetCookies(u, cookies)
	}

	LogDebug("Read %d cookies for %d hosts from %s", count, len(cookieMap), fname)
	return jar, nil
}

func parseCookieLine(line string) *http.Cookie {
	cookieParts := strings.Split(strings.TrimRight(line, "\r"), "\t")

	// Netscape cookie entries should always have 7 pieces to them
	if len(cookieParts) != CookiePieces {
		return nil
	}

	// JSON values are not valid cookie values and net/http logs about them
	if strings.Contains(cookieParts[CookieValue], `"`) {
		return nil
	}

	domain := strings.ToLower(cookieParts[CookieDomain])
	httpOnly := false
	if strings.HasPrefix(domain, "#httponly_") {
		httpOnly = true
		domain = strings.TrimPrefix(domain, "#httponly_")
	} else if strings.HasPrefix(domain, "#") {
		return nil
	}

	expire, _ := strconv.ParseInt(cookieParts[CookieExpiration], 10, 64)
	cookie := &http.Cookie{
		Domain:   domain,
		Path:     cookieParts[CookiePath],
		Secure:   strings.EqualFold(cookieParts[CookieSecure], "true"),
		Name:     cookieParts[CookieName],
		Value:    cookieParts[CookieValue],
		HttpOnly: httpOnly,
	}

	// 0 is a session cookie
	if expire > 0 {
		cookie.Expires = time.Unix(expire, 0)
	}

	return cookie
}
