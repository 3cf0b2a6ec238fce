package patterns

// `\b` inside these patterns is rewritten to a Unicode-aware boundary by
// Compile. Every pattern is matched case-insensitively.

func defaultSpecs() map[string][]RuleSpec {
	return map[string][]RuleSpec{
		// Tier order is evaluation order: critical, then high, then medium.
		TableUrgency: {
			{Tag: "critical", Patterns: []string{
				`\b(vattenläcka|översvämning|översvämmat|brinner|eld|brand|gasläcka|gaslukt|inbrott|skadegörelse)\b`,
				`\b(utelåst|låst ute|kommer inte in)\b`,
				`\b(flood(ing|ed)?|fire|burst pipe|gas leak|emergency|danger|break-in|locked out)\b`,
				`\b(akut|kritiskt|livsfarligt)!+`,
			}},
			{Tag: "high", Patterns: []string{
				`\b(ingen värme|inget vatten|inget varmvatten|ingen ström|strömavbrott|strömmen är borta|tappvattnet saknas)\b`,
				`\b(fryser|iskallt)\b`,
				`\b(låset fungerar inte|låset är trasigt|trasigt lås)\b`,
				`\b(no heat(ing)?|no (hot )?water|no power|power outage|broken lock|cannot enter)\b`,
				`\bfungerar inte alls\b`,
			}},
			{Tag: "medium", Patterns: []string{
				`\b(läcker|droppar|låter|fungerar dåligt|fungerar inte|trasig|trasigt|trasiga|sönder)\b`,
				`\b(leak(ing|s)?|dripping|noisy|broken|not working)\b`,
			}},
		},

		// Each pattern counts once towards its category.
		TableCategory: {
			{Tag: "water", Patterns: []string{
				`\bvatten`,
				`\b(avlopp|avloppet|stopp i avloppet)\b`,
				`\bkran(en|ar|arna)?\b`,
				`\b(toalett|toaletten|wc)\b`,
				`\b(läcker|läcka|läckage)\b`,
				`\b(droppar|droppe)\b`,
				`\bforsar\b`,
				`\b(water|flood(ing)?|pipe)\b`,
				`\b(drain|faucet|tap|toilet)\b`,
				`\b(leak(ing|s)?|drip(ping)?)\b`,
			}},
			{Tag: "electrical", Patterns: []string{
				`\bström`,
				`\b(el|elen|elektrisk|elektriska)\b`,
				`\b(lampa|lampan|lampor|ljuset|belysning)\b`,
				`\b(uttag|uttaget|brytare|säkring|säkringen|propp|propparna|jordfelsbrytare)\b`,
				`\b(glimmar|glimtar|flimrar|gnistor)\b`,
				`\b(power|electric(al|ity)?|outage)\b`,
				`\b(light|lamp|outlet|socket|switch|fuse|spark(s|ing)?)\b`,
			}},
			{Tag: "heating", Patterns: []string{
				`\bvärme`,
				`\b(element|elementen|elementet)\b`,
				`\b(kall|kallt|kyla|fryser)\b`,
				`\b(termostat|termostaten|ventilation|ventilationen)\b`,
				`\b(heat(ing|er)?|radiator|cold|freezing|thermostat|ventilation)\b`,
			}},
			{Tag: "security", Patterns: []string{
				`\b(lås|låset|låst|låsa)\b`,
				`\b(nyckel|nyckeln|nycklar|nycklarna)\b`,
				`\b(dörr|dörren|port|porten|porttelefon)\b`,
				`\b(inbrott|larm|larmet)\b`,
				`\b(lock(ed)?|key|keys|door|break-in|burglary|alarm)\b`,
			}},
			{Tag: "structural", Patterns: []string{
				`\b(tak|taket|vägg|väggen|väggar|golv|golvet)\b`,
				`\b(spricka|sprickor|fukt|mögel|fönster|fönstret)\b`,
				`\b(roof|wall|floor|ceiling|crack|mold|mould|damp|window)\b`,
			}},
			{Tag: "appliance", Patterns: []string{
				`\b(spis|spisen|ugn|ugnen|kyl|kylen|kylskåp|kylskåpet|frys|frysen)\b`,
				`\b(diskmaskin|diskmaskinen|tvättmaskin|tvättmaskinen|torktumlare|torktumlaren)\b`,
				`\b(stove|oven|fridge|freezer|dishwasher|washing machine|washer|dryer)\b`,
			}},
			{Tag: "noise", Patterns: []string{
				`\b(låter|oväsen|buller|störande|ljud|ljudet|musik|dunkar)\b`,
				`\b(noise|noisy|loud|banging)\b`,
			}},
		},

		// Intent order is declaration order; equal scores go to the earlier intent.
		TableIntent: {
			{Tag: "pricing_question", Patterns: []string{
				`\bpris(er|et|erna|ning)?\b`,
				`\bkosta(r|de)?\b`,
				`\bkostnad(en|er)?\b`,
				`\bhow much\b`,
				`\b(pricing|price|prices|cost)\b`,
			}},
			{Tag: "how_it_works", Patterns: []string{
				`\bhur fungerar\b`,
				`\bfungerar det\b`,
				`\bhow does it work\b`,
				`\bhow do (i|you)\b`,
				`\bvad (gör|kan) ni\b`,
			}},
			{Tag: "booking_request", Patterns: []string{
				`\bboka`,
				`\b(möte|mötet)\b`,
				`\b(meeting|schedule|demo)\b`,
				`\bbook(ing)?\b`,
				`\b(call me|ring mig)\b`,
			}},
			{Tag: "technical_issue", Patterns: []string{
				`\bfungerar inte\b`,
				`\bbugg`,
				`\b(error|felmeddelande)\b`,
				`\bcannot\b`,
				`\bdoesn'?t work\b`,
				`\bproblem\b`,
				`\bissue\b`,
				`\b(crash|krasch)`,
			}},
			{Tag: "refund_request", Patterns: []string{
				`\brefund\b`,
				`\bpengar(na)? tillbaka\b`,
				`\båterbetal`,
				`\bcancel`,
				`\bavsluta`,
			}},
			{Tag: "complaint", Patterns: []string{
				`\b(dålig|dåligt|dåliga)\b`,
				`\bhatar\b`,
				`\b(terrible|horrible|awful)\b`,
				`\b(disappointed|besviken|besvikna)\b`,
				`\b(klagomål|complain)`,
			}},
			{Tag: "feature_request", Patterns: []string{
				`\bkan ni (lägga till|bygga|införa|erbjuda)\b`,
				`\bwould be nice\b`,
				`\b(wish|önskar)\b`,
				`\b(feature|funktion)\b`,
			}},
			{Tag: "integration_question", Patterns: []string{
				`\bintegr`,
				`\b(connect|koppla)`,
				`\bwork with\b`,
				`\b(api|crm)\b`,
			}},
			{Tag: "escalation_demand", Patterns: []string{
				`\b(chef|chefen|manager|boss|supervisor)\b`,
				`\b(talk|speak) to\b`,
				`\b(prata|tala) med\b`,
				`\b(human|människa|riktig person)\b`,
			}},
			{Tag: "legal_threat", Patterns: []string{
				`\b(lagar|lagen|lawyer|advokat|attorney|sue|stämma)\b`,
				`\bkonsumentverket\b`,
				`\b(polisanmälan|polisen)\b`,
			}},
		},

		// Sentiment is first match in this order.
		TableSentiment: {
			{Tag: "angry", Patterns: []string{
				`\bidiot(er|s)?\b`,
				`\b(stupid|useless|waste|furious|angry)\b`,
				`\bnever.*again\b`,
				`\b(värdelös|värdelöst|horribel|vidrig|vidrigt|skäms|arg|förbannad)\b`,
			}},
			{Tag: "frustrated", Patterns: []string{
				`\b(impossible|omöjligt)\b`,
				`\bcan'?t\b`,
				`\bcannot\b`,
				`\b(why|varför)\b`,
				`\b(how many times|hur många gånger)\b`,
				`\b(äntligen|kaos|frustrerad|frustrerande)\b`,
				`\b(inte fungerar|fortfarande inte)\b`,
			}},
			{Tag: "positive", Patterns: []string{
				`\b(great|amazing|awesome|perfect|love|helpful)\b`,
				`\b(tack|tacksam)\b`,
				`\b(bra|utmärkt|toppen|super)\b`,
			}},
			{Tag: "slightly_negative", Patterns: []string{
				`\bnot\b`,
				`\b(doesn'?t|won'?t)\b`,
				`\b(nej|inte)\b`,
			}},
		},

		TableLeadTiers: {
			{Tag: "1", Patterns: []string{
				`\bhow does it work\b`,
				`\bvad.*kostar\b`,
				`\bpricing\b`,
				`\binformation\b`,
			}},
			{Tag: "2", Patterns: []string{
				`\bimplement(era|ation)\b`,
				`\bsetup\b`,
				`\bkomma igång\b`,
			}},
			{Tag: "3", Patterns: []string{
				`\bwe (are|need)\b`,
				`\bvi (behöver|söker|letar)\b`,
				`\blooking for\b`,
				`\b(integrate|integration)\b`,
			}},
			{Tag: "4", Patterns: []string{
				`\bboka\b`,
				`\b(schedule|callback|demo)\b`,
				`\bkontakta\b`,
				`\bofferte?\b`,
			}},
			{Tag: "5", Patterns: []string{
				`\bbuy\b`,
				`\bköpa?\b`,
				`\bready to\b`,
				`\bsign up\b`,
				`\bstarta? nu\b`,
				`\bsubscribe\b`,
			}},
		},

		TableCompany: {
			{Tag: "company", Patterns: []string{
				`\bwe are\b`,
				`\bvi är\b`,
				`\bour company\b`,
				`\bföretag`,
			}},
		},
		TablePricingHistory: {
			{Tag: "pricing", Patterns: []string{`\b(pris|priset|priser|price|pricing|kostar|kostnad)\b`}},
		},
		TableBookingHistory: {
			{Tag: "booking", Patterns: []string{`\b(boka|bokning|book|booking)\b`}},
		},
		TableUrgentWords: {
			{Tag: "urgent", Patterns: []string{`\b(urgent|bråttom|asap)\b`}},
		},

		TableInjection: {
			{Tag: "override", Patterns: []string{
				`\b(ignore|forget|disregard)\b.*\b(previous|above|prior|all|system|your)\b.*\b(instructions?|prompts?|rules)\b`,
				`\b(override|bypass|circumvent)\b.*\b(system|prompt|instructions|rules|filters?)\b`,
				`\b(new|updated|revised) (system )?(instructions|prompt)\b`,
				`\b(you are now|you're now|act as|pretend to be|roleplay as)\b`,
				`\b(simulate|imitate|mimic)\b.*\b(system|model|assistant)\b`,
			}},
			{Tag: "extraction", Patterns: []string{
				`\b(show|tell|reveal|display|print|output|dump|leak|extract)\b.*\b(system prompt|your (prompt|instructions|rules))\b`,
				`\b(above instructions|previous instructions|system message)\b`,
			}},
			{Tag: "jailbreak", Patterns: []string{
				`\b(jailbreak|jail break|developer mode|dan mode|unrestricted mode)\b`,
				`\b(no constraints|without rules|bypass filters|ignore safety)\b`,
			}},
			{Tag: "swedish", Patterns: []string{
				`\b(ignorera|glöm|strunta i)\b.*\b(instruktioner|instruktionerna|regler|reglerna)\b`,
				`\b(visa|berätta|avslöja|skriv ut)\b.*\b(dina|din|era) (instruktioner|regler|systemprompt|prompt)\b`,
				`\bsystemprompt`,
			}},
		},
		TableSuspicious: {
			{Tag: "meta", Patterns: []string{
				`\b(from now on|starting now|från och med nu)\b`,
				`\b(repeat|echo) (after me|this|back)\b`,
				`\b(output|return|respond)\b.*\b(as|in) json\b`,
				`\btranslate (this|the following)\b`,
			}},
		},
		TableOutputLeaks: {
			{Tag: "leak", Patterns: []string{
				`system prompt:`,
				`instructions:`,
				`as an ai,`,
				`i was told to`,
			}},
		},

		TableFastPath: {
			{Tag: "greeting", Patterns: []string{`^\s*(hej|hejsan|tjena|hallå|god dag|godmorgon|godkväll|hello|hi|hey)[\s!.?]*$`}},
			{Tag: "gratitude", Patterns: []string{`^\s*(tack|tackar|tack så mycket|tusen tack|thanks|thank you)[\s!.?]*$`}},
			{Tag: "goodbye", Patterns: []string{`^\s*(hejdå|hej då|adjö|vi ses|bye|goodbye)[\s!.?]*$`}},
			{Tag: "how_to_report", Patterns: []string{
				`^\s*hur (gör|fungerar) (jag|man) en felanmälan[\s!.?]*$`,
				`^\s*how do i report a fault[\s!.?]*$`,
			}},
			{Tag: "contact", Patterns: []string{`^\s*(kontakt|kontaktuppgifter|telefon|telefonnummer|nummer|mejl|e-post|email|contact)[\s!.?]*$`}},
			{Tag: "hours", Patterns: []string{`^\s*(öppettider|när är ni öppna|när har ni öppet|opening hours)[\s!.?]*$`}},
		},

		TableExtract: {
			{Tag: ExtractName, Patterns: []string{
				`(?:jag heter|mitt namn är|my name is|i am|i'm)\s+((?-i:\p{Lu}\p{Ll}+))`,
				`(?:det är|this is)\s+((?-i:\p{Lu}\p{Ll}+))\s+(?:här|here)`,
			}},
			{Tag: ExtractEmail, Patterns: []string{`([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`}},
			{Tag: ExtractPhone, Patterns: []string{
				`(?:^|[^\d+/:.-])((?:\+46|0)[\s-]?\d{1,3}(?:[\s-]?\d{2,4}){2,4})(?:$|[^\d/:-])`,
			}},
			{Tag: ExtractCompany, Patterns: []string{
				`\b(?:på|at|från|from|för|for)\s+((?-i:\p{Lu}\p{L}+(?:\s+(?:AB|HB|Group|iQ|Inc|Ltd))))`,
			}},
			{Tag: ExtractLocation, Patterns: []string{
				`\b(\p{L}+(?:gatan|vägen|gränd|torget|allén|stigen|backen|street|road|avenue)\s+\d+[a-z]?)\b`,
				`\b((?:lägenhet|lgh|apartment|apt)\.?\s*(?:nr\.?\s*)?\d+)`,
				`\b(?:adress(?:en)?|address)\s*(?:är|is|:)\s*([^,.!?\n]+)`,
			}},
		},

		TableLegal: {
			{Tag: "legal", Patterns: []string{
				`\b(lagar|advokat|konsumentverket|polisen|polisanmälan|stämma|stämmer er)\b`,
				`\b(lawyer|attorney|sue|legal action)\b`,
			}},
		},
		TableManager: {
			{Tag: "manager", Patterns: []string{
				`\b(chef|chefen|ledning|ledningen|överordnad)\b`,
				`\b(manager|supervisor)\b`,
			}},
		},
		TableBilling: {
			{Tag: "billing", Patterns: []string{
				`\b(faktureringsfel|felaktig betalning|felaktig faktura|dubbeldebiter)`,
				`\b(dragit|dragen|dragna) pengar\b`,
				`\b(billing error|charged twice|wrong invoice)\b`,
			}},
		},
		TableContract: {
			{Tag: "contract", Patterns: []string{
				`\b(avtal|avtalet|kontrakt|kontraktet|bindande|bindningstid|uppsägningstid)\b`,
				`\b(contract|binding|notice period)\b`,
			}},
		},
	}
}
