// Package browser drives the vendor portal's login form in a headless browser
// and turns the resulting session cookie into a token.
//
// The flow is written against the Page and Launcher interfaces; ChromeLauncher
// implements them with chromedp. Selectors are evaluated with DOM search, so
// both CSS selectors and XPath expressions are accepted.
//
// Every browser started by a Flow is closed on all exit paths unless the Flow
// returns it to the caller as part of a successful Session.
package browser
