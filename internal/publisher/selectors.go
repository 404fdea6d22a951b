package publisher

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/cuongbtq/relay-poster/internal/automation"
)

const (
	homePath    = "/home"
	loginPath   = "/i/flow/login"
	composePath = "/compose/post"

	captionPrefixRunes = 20
)

var (
	authenticatedMarkers = []automation.Selector{
		automation.CSS(`[data-testid="SideNav_AccountSwitcher_Button"]`),
		automation.CSS(`[data-testid="AppTabBar_Home_Link"]`),
		automation.CSS(`a[data-testid="SideNav_NewTweet_Button"]`),
	}

	usernameInputs = []automation.Selector{
		automation.CSS(`input[autocomplete="username"]`),
		automation.CSS(`input[name="text"]`),
	}
	nextButtons = []automation.Selector{
		automation.XPath(`//button[.//span[text()="Next"]]`),
		automation.CSS(`[role="button"][data-testid="ocfEnterTextNextButton"]`),
	}
	passwordInputs = []automation.Selector{
		automation.CSS(`input[name="password"]`),
		automation.CSS(`input[type="password"]`),
	}
	loginButtons = []automation.Selector{
		automation.CSS(`[data-testid="LoginForm_Login_Button"]`),
		automation.XPath(`//button[.//span[text()="Log in"]]`),
	}

	composeButtons = []automation.Selector{
		automation.CSS(`a[data-testid="SideNav_NewTweet_Button"]`),
		automation.CSS(`a[href="/compose/post"][role="link"]`),
	}
	textSurfaces = []automation.Selector{
		automation.CSS(`div[data-testid="tweetTextarea_0"]`),
		automation.CSS(`div[role="textbox"][contenteditable="true"]`),
	}

	fileInputs = []automation.Selector{
		automation.CSS(`input[data-testid="fileInput"]`),
		automation.CSS(`input[type="file"][accept*="image"]`),
		automation.CSS(`input[type="file"]`),
	}
	addMediaButtons = []automation.Selector{
		automation.CSS(`button[aria-label="Add photos or video"]`),
		automation.CSS(`[data-testid="toolBar"] [role="button"][aria-label*="photo"]`),
	}
	attachments = []automation.Selector{
		automation.CSS(`[data-testid="attachments"] [data-testid="tweetPhoto"]`),
		automation.CSS(`[data-testid="attachments"] img`),
	}

	submitButtons = []automation.Selector{
		automation.CSS(`[data-testid="tweetButton"]`),
		automation.CSS(`[data-testid="tweetButtonInline"]`),
		automation.XPath(`//button[.//span[text()="Post"]]`),
	}

	toasts = []automation.Selector{
		automation.CSS(`[data-testid="toast"]`),
		automation.CSS(`div[role="alert"]`),
	}
	toastLinks = []automation.Selector{
		automation.CSS(`[data-testid="toast"] a[href*="/status/"]`),
		automation.CSS(`div[role="alert"] a[href*="/status/"]`),
	}
	toastSuccessPhrases = []string{
		"your post was sent",
		"your tweet was sent",
		"post sent",
	}
)

var statusPattern = regexp.MustCompile(`/status/(\d+)`)

// jsElement returns a JavaScript expression resolving sel to an element or null.
func jsElement(sel automation.Selector) string {
	if sel.XPath {
		return fmt.Sprintf(
			`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			strconv.Quote(sel.Query))
	}
	return fmt.Sprintf(`document.querySelector(%s)`, strconv.Quote(sel.Query))
}

func clickScript(sel automation.Selector) string {
	return fmt.Sprintf(`(() => { const el = %s; if (!el) return false; el.click(); return true; })()`, jsElement(sel))
}

func centerScript(sel automation.Selector) string {
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return null;
  const r = el.getBoundingClientRect();
  return {x: r.left + r.width / 2, y: r.top + r.height / 2};
})()`, jsElement(sel))
}

func inputNudgeScript(sel automation.Selector) string {
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return false;
  el.dispatchEvent(new InputEvent("input", {bubbles: true}));
  return true;
})()`, jsElement(sel))
}

// latestStatusScript returns the highest status ID linked from the profile
// page of username, as a string.
func latestStatusScript(username string) string {
	return fmt.Sprintf(`(() => {
  const re = new RegExp("^/" + %s + "/status/(\\d+)", "i");
  let best = "";
  for (const a of document.querySelectorAll('a[href*="/status/"]')) {
    const m = (a.getAttribute("href") || "").match(re);
    if (!m) continue;
    const id = m[1];
    if (id.length > best.length || (id.length === best.length && id > best)) best = id;
  }
  return best;
})()`, strconv.Quote(regexp.QuoteMeta(username)))
}
