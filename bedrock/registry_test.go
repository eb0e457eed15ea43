package bedrock

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/nrbedrock/bedrock-observability/bedrock/anthropic"
	"github.com/nrbedrock/bedrock-observability/bedrock/cohere"
	"github.com/nrbedrock/bedrock-observability/bedrock/generic"
	"github.com/nrbedrock/bedrock-observability/bedrock/llama"
	"github.com/nrbedrock/bedrock-observability/bedrock/mistral"
	"github.com/nrbedrock/bedrock-observability/bedrock/titan"
)

func TestResolve(t *testing.T) {
	Convey("Resolve model ids", t, func() {
		Convey("plain foundation model ids", func() {
			info := Resolve("anthropic.claude-v2")
			So(info.ID, ShouldEqual, "anthropic.claude-v2")
			So(info.BaseID, ShouldEqual, "anthropic.claude-v2")
			So(info.Provider, ShouldEqual, "anthropic")
			So(info.Family, ShouldEqual, FamilyAnthropic)
			So(info.Embedding, ShouldBeFalse)
			So(info.RegionPrefix, ShouldBeEmpty)

			So(Resolve("amazon.titan-text-express-v1").Family, ShouldEqual, FamilyTitan)
			So(Resolve("amazon.titan-text-express-v1").Provider, ShouldEqual, "amazon")
			So(Resolve("meta.llama3-8b-instruct-v1:0").Family, ShouldEqual, FamilyLlama)
			So(Resolve("cohere.command-text-v14").Family, ShouldEqual, FamilyCohere)
			So(Resolve("mistral.mixtral-8x7b-instruct-v0:1").Family, ShouldEqual, FamilyMistral)
			So(Resolve("amazon.nova-lite-v1:0").Family, ShouldEqual, FamilyGeneric)
		})

		Convey("family dispatch ignores case", func() {
			So(Resolve("Anthropic.Claude-3").Family, ShouldEqual, FamilyAnthropic)
		})

		Convey("embedding models", func() {
			info := Resolve("amazon.titan-embed-text-v2:0")
			So(info.Embedding, ShouldBeTrue)
			So(info.Family, ShouldEqual, FamilyTitan)
			So(Resolve("cohere.embed-english-v3").Embedding, ShouldBeTrue)
		})

		Convey("cross-region inference profiles", func() {
			cases := map[string]string{
				"us.anthropic.claude-3-haiku-20240307-v1:0":      "us",
				"eu.anthropic.claude-3-sonnet-20240229-v1:0":     "eu",
				"apac.anthropic.claude-3-5-sonnet-20240620-v1:0": "apac",
				"jp.anthropic.claude-haiku-4-5-20251001-v1:0":    "jp",
				"au.anthropic.claude-sonnet-4-5-20250929-v1:0":   "au",
				"us-gov.anthropic.claude-3-haiku-20240307-v1:0":  "us-gov",
				"global.anthropic.claude-sonnet-4-20250514-v1:0": "global",
			}
			for id, prefix := range cases {
				info := Resolve(id)
				So(info.RegionPrefix, ShouldEqual, prefix)
				So(info.Provider, ShouldEqual, "anthropic")
				So(info.BaseID, ShouldStartWith, "anthropic.")
			}
		})

		Convey("a two segment id is not treated as a profile", func() {
			info := Resolve("us.something")
			So(info.RegionPrefix, ShouldBeEmpty)
			So(info.Provider, ShouldEqual, "us")
		})

		Convey("ARNs resolve to the model segment", func() {
			info := Resolve("arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-v2:1")
			So(info.BaseID, ShouldEqual, "anthropic.claude-v2:1")
			So(info.Provider, ShouldEqual, "anthropic")
			So(info.Family, ShouldEqual, FamilyAnthropic)

			info = Resolve("arn:aws:bedrock:us-west-2:123456789012:inference-profile/us.meta.llama3-2-11b-instruct-v1:0")
			So(info.RegionPrefix, ShouldEqual, "us")
			So(info.Provider, ShouldEqual, "meta")
			So(info.Family, ShouldEqual, FamilyLlama)

			info = Resolve("arn:aws:bedrock:us-east-1:123456789012:application-inference-profile/abc123")
			So(info.Provider, ShouldEqual, Unknown)
			So(info.Family, ShouldEqual, FamilyGeneric)
		})

		Convey("missing or undotted ids", func() {
			info := Resolve("")
			So(info.ID, ShouldEqual, Unknown)
			So(info.Provider, ShouldEqual, Unknown)

			info = Resolve("mymodel")
			So(info.ID, ShouldEqual, "mymodel")
			So(info.Provider, ShouldEqual, Unknown)
		})
	})
}

func TestResolveIsMemoized(t *testing.T) {
	Convey("Resolve caches results", t, func() {
		SetCacheTTL(time.Minute)
		FlushCache()

		first := Resolve("anthropic.claude-instant-v1")
		_, ok := resolved.Get("anthropic.claude-instant-v1")
		So(ok, ShouldBeTrue)
		So(Resolve("anthropic.claude-instant-v1"), ShouldResemble, first)

		FlushCache()
		_, ok = resolved.Get("anthropic.claude-instant-v1")
		So(ok, ShouldBeFalse)
	})
}

func TestParserFor(t *testing.T) {
	Convey("each family has its parser", t, func() {
		So(ParserFor(FamilyAnthropic), ShouldHaveSameTypeAs, &anthropic.Parser{})
		So(ParserFor(FamilyTitan), ShouldHaveSameTypeAs, &titan.Parser{})
		So(ParserFor(FamilyLlama), ShouldHaveSameTypeAs, &llama.Parser{})
		So(ParserFor(FamilyCohere), ShouldHaveSameTypeAs, &cohere.Parser{})
		So(ParserFor(FamilyMistral), ShouldHaveSameTypeAs, &mistral.Parser{})
		So(ParserFor(FamilyGeneric), ShouldHaveSameTypeAs, &generic.Parser{})
		So(ParserFor(Family(99)), ShouldHaveSameTypeAs, &generic.Parser{})
		So(Resolve("anthropic.claude-v2").Parser(), ShouldHaveSameTypeAs, &anthropic.Parser{})
	})

	Convey("family names", t, func() {
		So(FamilyAnthropic.String(), ShouldEqual, "anthropic")
		So(FamilyGeneric.String(), ShouldEqual, "generic")
	})
}
