package pipeline

// Progress messages shown to end users, keyed by locale. Unknown locales
// fall back to English.

var stageMessages = map[string]map[Stage]string{
	"en": {
		StageCheckingCache: "Checking for a cached result",
		StageValidating:    "Validating target",
		StageFetching:      "Fetching target content",
		StageDescribing:    "Summarizing content",
		StageGenerating:    "Generating artifact",
		StagePartial:       "Rendering in progress",
		StageCompleted:     "Generation complete",
	},
	"id": {
		StageCheckingCache: "Memeriksa hasil di cache",
		StageValidating:    "Memvalidasi target",
		StageFetching:      "Mengambil konten target",
		StageDescribing:    "Merangkum konten",
		StageGenerating:    "Membuat artefak",
		StagePartial:       "Proses render sedang berjalan",
		StageCompleted:     "Pembuatan selesai",
	},
}

var cachedMessages = map[string]string{
	"en": "Serving previously generated artifact",
	"id": "Menyajikan artefak dari cache",
}

func stageMessage(locale string, stage Stage) string {
	if msgs, ok := stageMessages[locale]; ok {
		if msg, ok := msgs[stage]; ok {
			return msg
		}
	}
	return stageMessages["en"][stage]
}

func cachedMessage(locale string) string {
	if msg, ok := cachedMessages[locale]; ok {
		return msg
	}
	return cachedMessages["en"]
}
