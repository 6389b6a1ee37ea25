package i18n

var bnBDCatalog = &Catalog{
	locale: "bn-BD",
	messages: map[Code]string{
		CodeUnknown:                "কিছু একটা ভুল হয়েছে",
		CodeFetchFailed:            "{{.cache_key}} লোড করা যায়নি",
		CodeSubscriptionOpenFailed: "{{.resource}} এর লাইভ আপডেট পাওয়া যাচ্ছে না",
		CodeCallbackFailed:         "{{.resource}} এর লাইভ আপডেট প্রয়োগ করা যায়নি",
		CodeInvalidArgument:        "অনুরোধটি সঠিক নয়",
		CodeNotFound:               "অনুরোধ করা রেকর্ডটি পাওয়া যায়নি",
		CodeUnavailable:            "ডেটা সার্ভিস এখন পাওয়া যাচ্ছে না",
	},
}
