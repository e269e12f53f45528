package keywords

// Base is the English function-word list shared by every source. Tokens shorter
// than three letters never reach the filter, so they are not listed.
var Base = set(
	"the", "and", "but", "for", "with", "this", "that", "was", "are", "been",
	"have", "has", "had", "not", "from", "they", "them", "their", "there", "then",
	"than", "very", "just", "get", "got", "can", "cant", "would", "could", "should",
	"will", "when", "what", "which", "who", "more", "much", "some", "all", "one",
	"two", "also", "did", "yes", "out", "about", "into", "like", "really", "still",
	"even", "back", "way", "well", "only", "time", "after", "before", "because",
	"see", "how", "you", "your", "its", "now", "any", "our", "over", "dont",
	"doesnt", "didnt", "wasnt", "isnt", "ive", "thats", "hes", "shes", "were",
	"theyre", "youre", "actually", "pretty", "bit", "lot", "things", "thing",
	"too", "since", "little", "every", "other", "same", "most", "many", "few",
	"already", "always", "never", "ever", "maybe", "probably", "quite", "sure",
	"while", "without", "through", "around", "against", "between", "own", "off",
	"here", "where", "why", "something", "someone", "nothing", "everything",
	"anything", "make", "makes", "made",
)

// RedditNoise covers Reddit markup and boilerplate.
var RedditNoise = set(
	"https", "www", "com", "reddit", "post", "comment", "edit", "deleted",
	"removed", "game", "games", "gaming",
)

// SteamNoise covers store vocabulary that appears in almost every review.
var SteamNoise = set(
	"good", "great", "bad", "game", "games", "play", "played", "playing",
	"hours", "hrs", "steam", "review", "reviews", "though", "overall", "feel",
	"felt", "buy", "bought", "worth", "price", "free", "dlc", "update", "patch",
	"early", "access", "new", "old", "first", "last", "another", "second",
	"different", "better", "best", "worst", "worse", "less", "far",
)

// XNoise covers tweet boilerplate.
var XNoise = set(
	"good", "great", "bad", "game", "games", "play", "played", "playing",
	"https", "http", "amp", "via", "com", "www", "twitter", "tweet", "tweets",
	"retweet", "follow", "lol", "people", "going", "know", "think", "say",
	"said", "says", "new",
)

// NoiseFor returns the noise set for a source name; unknown sources get none.
func NoiseFor(source string) map[string]struct{} {
	switch source {
	case "reddit":
		return RedditNoise
	case "steam":
		return SteamNoise
	case "x", "nitter":
		return XNoise
	}
	return nil
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
